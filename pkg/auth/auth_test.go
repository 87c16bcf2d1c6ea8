package auth

import (
	"testing"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
	"github.com/stretchr/testify/require"
)

func TestResolveVNI_PrefersRequestedOverAmbient(t *testing.T) {
	r, code := ResolveVNI(
		Candidate{VNI: 7, HasVNI: true},
		Candidate{VNI: 99, HasVNI: true},
	)
	require.Equal(t, status.Success, code)
	require.Equal(t, uint16(7), r.VNI)
}

func TestResolveVNI_FallsBackToAmbient(t *testing.T) {
	r, code := ResolveVNI(
		Candidate{},
		Candidate{VNI: 99, HasVNI: true},
	)
	require.Equal(t, status.Success, code)
	require.Equal(t, uint16(99), r.VNI)
}

func TestResolveVNI_FailsWithNeither(t *testing.T) {
	_, code := ResolveVNI(Candidate{}, Candidate{})
	require.Equal(t, status.Permission, code)
}

func TestResolveVNI_ServiceIDAndTrafficClass_PreferRequested(t *testing.T) {
	r, code := ResolveVNI(
		Candidate{VNI: 1, HasVNI: true, ServiceID: 42, HasServiceID: true, TrafficClass: 3, HasTrafficClass: true},
		Candidate{VNI: 1, HasVNI: true, ServiceID: 99, HasServiceID: true, TrafficClass: 7, HasTrafficClass: true},
	)
	require.Equal(t, status.Success, code)
	require.Equal(t, uint16(42), r.ServiceID)
	require.Equal(t, uint8(3), r.TrafficClass)
}

func TestResolveVNI_ServiceIDAndTrafficClass_FallBackToAmbient(t *testing.T) {
	r, code := ResolveVNI(
		Candidate{VNI: 1, HasVNI: true},
		Candidate{VNI: 1, HasVNI: true, ServiceID: 99, HasServiceID: true, TrafficClass: 7, HasTrafficClass: true},
	)
	require.Equal(t, status.Success, code)
	require.Equal(t, uint16(99), r.ServiceID)
	require.Equal(t, uint8(7), r.TrafficClass)
}

func TestResolveVNI_ServiceIDAndTrafficClass_DefaultToZero(t *testing.T) {
	r, code := ResolveVNI(
		Candidate{VNI: 1, HasVNI: true},
		Candidate{VNI: 1, HasVNI: true},
	)
	require.Equal(t, status.Success, code)
	require.Equal(t, uint16(0), r.ServiceID)
	require.Equal(t, uint8(0), r.TrafficClass)
}
