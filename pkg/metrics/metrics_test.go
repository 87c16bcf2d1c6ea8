package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsEnabled_DefaultsFalse(t *testing.T) {
	require.False(t, IsEnabled())
}

func TestSetEnabled_Toggles(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	require.True(t, IsEnabled())
}

func TestNewKeymapMetrics_NilWhenDisabled(t *testing.T) {
	SetEnabled(false)
	require.Nil(t, NewKeymapMetrics())
}

func TestNewMRCacheMetrics_NilWhenDisabled(t *testing.T) {
	SetEnabled(false)
	require.Nil(t, NewMRCacheMetrics())
}

func TestNewProgressMetrics_NilWhenDisabled(t *testing.T) {
	SetEnabled(false)
	require.Nil(t, NewProgressMetrics())
}

func TestGetRegistry_ReturnsSameInstance(t *testing.T) {
	require.Same(t, GetRegistry(), GetRegistry())
}
