package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range GetRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status", "logs", "init", "version"} {
		require.True(t, names[want], "expected subcommand %q", want)
	}
}

func TestGetDefaultStateDir_HonorsXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/kfabric-test-state")
	require.Equal(t, "/tmp/kfabric-test-state/kfabric", GetDefaultStateDir())
}

func TestGetDefaultPidFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/kfabric-test-state")
	require.Equal(t, "/tmp/kfabric-test-state/kfabric/kfabricd.pid", GetDefaultPidFile())
}

func TestPrintStatus_StoppedDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		printStatus(daemonStatus{message: "daemon is not running"})
	})
}
