package device

import (
	"context"
	"testing"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/auth"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric/fabricsim"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
	"github.com/stretchr/testify/require"
)

func discoverOne(t *testing.T, sim *fabricsim.Provider) *Device {
	t.Helper()
	devices, err := Discover(context.Background(), sim, DiscoverConfig{ProviderName: "cxi"})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	return devices[0]
}

func TestDiscover_SkipsFailingDevicesWithoutAborting(t *testing.T) {
	sim := fabricsim.New()
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "good0"})
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "bad0"})
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "good1"})
	sim.FailOpenFabric["bad0"] = true

	devices, err := Discover(context.Background(), sim, DiscoverConfig{ProviderName: "cxi"})
	require.NoError(t, err)
	require.Len(t, devices, 2)

	names := map[string]bool{}
	for _, d := range devices {
		names[d.Name] = true
	}
	require.True(t, names["good0"])
	require.True(t, names["good1"])
	require.False(t, names["bad0"])
}

func TestQPStateMachine_FullLifecycle(t *testing.T) {
	sim := fabricsim.New()
	sim.AddInfo(&fabric.Info{
		ProviderName: "cxi", NodeName: "dev0",
		DefaultVNI: 10, HasDefaultVNI: true,
		DefaultServiceID: 42, HasDefaultServiceID: true,
		DefaultTrafficClass: 3, HasDefaultTrafficClass: true,
	})
	dev := discoverOne(t, sim)

	pd := dev.AllocPD()
	sendCQ, code := dev.CreateCQ(16)
	require.Equal(t, status.Success, code)
	recvCQ, code := dev.CreateCQ(16)
	require.Equal(t, status.Success, code)

	qp, code := dev.CreateQP(pd, sendCQ, recvCQ)
	require.Equal(t, status.Success, code)
	require.Equal(t, StateReset, qp.State())

	ambient := auth.Candidate{
		VNI: dev.Info.DefaultVNI, HasVNI: dev.Info.HasDefaultVNI,
		ServiceID: dev.Info.DefaultServiceID, HasServiceID: dev.Info.HasDefaultServiceID,
		TrafficClass: dev.Info.DefaultTrafficClass, HasTrafficClass: dev.Info.HasDefaultTrafficClass,
	}
	code = qp.ModifyToInit(auth.Candidate{}, ambient)
	require.Equal(t, status.Success, code)
	require.Equal(t, StateInit, qp.State())
	vni, has := qp.VNI()
	require.True(t, has)
	require.Equal(t, uint16(10), vni)
	require.Equal(t, uint16(42), qp.ServiceID())
	require.Equal(t, uint8(3), qp.TrafficClass())

	code = qp.ModifyToRTR([]byte("peer-address"))
	require.Equal(t, status.Success, code)
	require.Equal(t, StateRTR, qp.State())

	code = qp.ModifyToRTS()
	require.Equal(t, status.Success, code)
	require.Equal(t, StateRTS, qp.State())

	code = dev.DestroyQP(qp)
	require.Equal(t, status.Success, code)
}

func TestQPInit_FailsWithoutAnyVNI(t *testing.T) {
	sim := fabricsim.New()
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "dev0"})
	dev := discoverOne(t, sim)

	pd := dev.AllocPD()
	cq, _ := dev.CreateCQ(16)
	qp, _ := dev.CreateQP(pd, cq, cq)

	code := qp.ModifyToInit(auth.Candidate{}, auth.Candidate{})
	require.Equal(t, status.Permission, code)
	require.Equal(t, StateReset, qp.State())
}

func TestModifyToRTR_RequiresInit(t *testing.T) {
	sim := fabricsim.New()
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "dev0"})
	dev := discoverOne(t, sim)

	pd := dev.AllocPD()
	cq, _ := dev.CreateCQ(16)
	qp, _ := dev.CreateQP(pd, cq, cq)

	code := qp.ModifyToRTR([]byte("addr"))
	require.Equal(t, status.InvalidArgument, code)
}

func TestDestroyCQ_BusyWhileBoundToQP(t *testing.T) {
	sim := fabricsim.New()
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "dev0"})
	dev := discoverOne(t, sim)

	pd := dev.AllocPD()
	cq, _ := dev.CreateCQ(16)
	_, code := dev.CreateQP(pd, cq, cq)
	require.Equal(t, status.Success, code)

	code = dev.DestroyCQ(cq)
	require.Equal(t, status.Busy, code)
}

func TestDeallocPD_BusyWhileQPOpen(t *testing.T) {
	sim := fabricsim.New()
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "dev0"})
	dev := discoverOne(t, sim)

	pd := dev.AllocPD()
	cq, _ := dev.CreateCQ(16)
	_, _ = dev.CreateQP(pd, cq, cq)

	require.False(t, dev.DeallocPD(pd))
}

func TestDeviceClose_ForcesReferencedMRCacheEntriesOut(t *testing.T) {
	sim := fabricsim.New()
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "dev0"})
	dev := discoverOne(t, sim)

	pd := dev.AllocPD()
	_, code := dev.MRCache.Get(pd, 0x1000, 4096, fabric.AccessLocalWrite)
	require.Equal(t, status.Success, code)

	require.NoError(t, dev.Close())
}
