package mountopt

import (
	"testing"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
	"github.com/stretchr/testify/require"
)

// TestConcreteScenario7 reproduces spec.md §8 scenario 7.
func TestConcreteScenario7(t *testing.T) {
	v, code := ParseVNI("vni=42")
	require.Equal(t, status.Success, code)
	require.Equal(t, uint16(42), v)
}

func TestParseVNI_Empty(t *testing.T) {
	_, code := ParseVNI("")
	require.Equal(t, status.InvalidArgument, code)
}

func TestParseVNI_NoVNIKey(t *testing.T) {
	_, code := ParseVNI("foo=bar,baz=qux")
	require.Equal(t, status.InvalidArgument, code)
}

func TestParseVNI_OutOfRange(t *testing.T) {
	_, code := ParseVNI("vni=65536")
	require.Equal(t, status.InvalidArgument, code)
}

func TestParseVNI_Malformed(t *testing.T) {
	_, code := ParseVNI("vni=abc")
	require.Equal(t, status.InvalidArgument, code)
}

func TestParseVNI_MultiKeyString(t *testing.T) {
	v, code := ParseVNI("rsize=1048576,vni=7,proto=rdma")
	require.Equal(t, status.Success, code)
	require.Equal(t, uint16(7), v)
}

func TestParseVNI_Boundary(t *testing.T) {
	v, code := ParseVNI("vni=65535")
	require.Equal(t, status.Success, code)
	require.Equal(t, uint16(65535), v)

	v, code = ParseVNI("vni=0")
	require.Equal(t, status.Success, code)
	require.Equal(t, uint16(0), v)
}
