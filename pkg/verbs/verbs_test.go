package verbs

import (
	"context"
	"testing"
	"unsafe"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/auth"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/device"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric/fabricsim"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
	"github.com/stretchr/testify/require"
)

// readyQP discovers a device with an ambient VNI and drives a QP to RTS,
// ready to post operations.
func readyQP(t *testing.T) (*fabricsim.Provider, *device.Device, *device.QP) {
	t.Helper()
	sim := fabricsim.New()
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "dev0", DefaultVNI: 7, HasDefaultVNI: true})
	devices, err := device.Discover(context.Background(), sim, device.DiscoverConfig{ProviderName: "cxi"})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	dev := devices[0]

	pd := dev.AllocPD()
	cq, code := dev.CreateCQ(16)
	require.Equal(t, status.Success, code)

	qp, code := dev.CreateQP(pd, cq, cq)
	require.Equal(t, status.Success, code)
	ambient := auth.Candidate{
		VNI: dev.Info.DefaultVNI, HasVNI: dev.Info.HasDefaultVNI,
		ServiceID: dev.Info.DefaultServiceID, HasServiceID: dev.Info.HasDefaultServiceID,
		TrafficClass: dev.Info.DefaultTrafficClass, HasTrafficClass: dev.Info.HasDefaultTrafficClass,
	}
	require.Equal(t, status.Success, qp.ModifyToInit(auth.Candidate{}, ambient))
	require.Equal(t, status.Success, qp.ModifyToRTR([]byte("peer")))
	require.Equal(t, status.Success, qp.ModifyToRTS())
	return sim, dev, qp
}

func registerBuf(t *testing.T, dev *device.Device, pd *device.PD, buf []byte) SGE {
	t.Helper()
	region, code := dev.FastRegisterMR(pd, fabric.AccessLocalWrite|fabric.AccessRemoteWrite|fabric.AccessRemoteRead)
	require.Equal(t, status.Success, code)

	n, code := dev.MRManager().MapSG(region, []fabric.SGE{{Addr: addrOf(buf), Length: uint64(len(buf))}}, 0, 4096)
	require.Equal(t, status.Success, code)
	require.Equal(t, 1, n)

	return SGE{LocalKey: region.LocalKey(), Addr: addrOf(buf), Length: uint64(len(buf))}
}

func addrOf(buf []byte) uint64 {
	if len(buf) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}

func TestPostSend_SingleSGE_Success(t *testing.T) {
	_, dev, qp := readyQP(t)
	pd := dev.AllocPD()
	buf := make([]byte, 64)
	sge := registerBuf(t, dev, pd, buf)

	failing, code := PostSend(qp, &WorkRequest{ID: 1, Opcode: OpSend, SGEs: []SGE{sge}})
	require.Equal(t, status.Success, code)
	require.Nil(t, failing)
}

func TestPostSend_VectoredWithinLimit(t *testing.T) {
	_, dev, qp := readyQP(t)
	pd := dev.AllocPD()
	buf1 := make([]byte, 32)
	buf2 := make([]byte, 32)
	sge1 := registerBuf(t, dev, pd, buf1)
	sge2 := registerBuf(t, dev, pd, buf2)

	failing, code := PostSend(qp, &WorkRequest{ID: 2, Opcode: OpSend, SGEs: []SGE{sge1, sge2}})
	require.Equal(t, status.Success, code)
	require.Nil(t, failing)
}

func TestPostSend_ExceedsMaxSGE_InvalidArgument(t *testing.T) {
	_, dev, qp := readyQP(t)
	pd := dev.AllocPD()
	buf := make([]byte, 8)
	sge := registerBuf(t, dev, pd, buf)

	sges := make([]SGE, 17)
	for i := range sges {
		sges[i] = sge
	}

	failing, code := PostSend(qp, &WorkRequest{ID: 3, Opcode: OpSend, SGEs: sges})
	require.Equal(t, status.InvalidArgument, code)
	require.NotNil(t, failing)
}

func TestPostSend_UnknownLocalKey_InvalidArgument(t *testing.T) {
	_, _, qp := readyQP(t)

	failing, code := PostSend(qp, &WorkRequest{ID: 4, Opcode: OpSend, SGEs: []SGE{{LocalKey: 0xDEAD, Addr: 0x1000, Length: 16}}})
	require.Equal(t, status.InvalidArgument, code)
	require.NotNil(t, failing)
}

func TestPostSend_UnsupportedOpcode(t *testing.T) {
	_, dev, qp := readyQP(t)
	pd := dev.AllocPD()
	buf := make([]byte, 8)
	sge := registerBuf(t, dev, pd, buf)

	failing, code := PostSend(qp, &WorkRequest{ID: 5, Opcode: Opcode(99), SGEs: []SGE{sge}})
	require.Equal(t, status.Unsupported, code)
	require.NotNil(t, failing)
}

func TestPostSend_TransientStopsChainAtFirstFailing(t *testing.T) {
	_, dev, qp := readyQP(t)
	pd := dev.AllocPD()
	buf1 := make([]byte, 8)
	buf2 := make([]byte, 8)
	sge1 := registerBuf(t, dev, pd, buf1)
	sge2 := registerBuf(t, dev, pd, buf2)

	fabricsim.ForceNextSubmitError(qp.Native(), status.NativeEAGAIN, 1)

	second := &WorkRequest{ID: 7, Opcode: OpSend, SGEs: []SGE{sge2}}
	first := &WorkRequest{ID: 6, Opcode: OpSend, SGEs: []SGE{sge1}, Next: second}

	failing, code := PostSend(qp, first)
	require.Equal(t, status.Again, code)
	require.Same(t, first, failing)
}

func TestPostSend_SendWithInvalidate_DegradesToSend(t *testing.T) {
	_, dev, qp := readyQP(t)
	pd := dev.AllocPD()
	buf := make([]byte, 8)
	sge := registerBuf(t, dev, pd, buf)

	failing, code := PostSend(qp, &WorkRequest{ID: 8, Opcode: OpSendWithInvalidate, SGEs: []SGE{sge}})
	require.Equal(t, status.Success, code)
	require.Nil(t, failing)

	require.False(t, qp.WarnInvalidateOnce())
}

// TestClassifyOpcode_ConcreteScenario5 reproduces spec.md §8 scenario 5
// verbatim.
func TestClassifyOpcode_ConcreteScenario5(t *testing.T) {
	require.Equal(t, FabricOpSend, ClassifyOpcode(OpSend))
	require.Equal(t, FabricOpSend, ClassifyOpcode(OpSendWithImm))
	require.Equal(t, FabricOpWrite, ClassifyOpcode(OpRDMAWrite))
	require.Equal(t, FabricOpWrite, ClassifyOpcode(OpRDMAWriteWithImm))
	require.Equal(t, FabricOpRead, ClassifyOpcode(OpRDMARead))
	require.Equal(t, FabricOpAtomic, ClassifyOpcode(OpAtomicCmpAndSwap))
	require.Equal(t, FabricOpAtomic, ClassifyOpcode(OpAtomicFetchAndAdd))
	require.Equal(t, FabricOpUnknown, ClassifyOpcode(Opcode(99)))
}

func TestPostRecv_Success(t *testing.T) {
	_, dev, qp := readyQP(t)
	pd := dev.AllocPD()
	buf := make([]byte, 64)
	sge := registerBuf(t, dev, pd, buf)

	failing, code := PostRecv(qp, &WorkRequest{ID: 9, SGEs: []SGE{sge}})
	require.Equal(t, status.Success, code)
	require.Nil(t, failing)
}

func TestBatch_PostSend(t *testing.T) {
	_, dev, qp := readyQP(t)
	pd := dev.AllocPD()
	buf1 := make([]byte, 8)
	buf2 := make([]byte, 8)
	sge1 := registerBuf(t, dev, pd, buf1)
	sge2 := registerBuf(t, dev, pd, buf2)

	var b Batch
	require.True(t, b.Add(WorkRequest{ID: 10, Opcode: OpSend, SGEs: []SGE{sge1}}))
	require.True(t, b.Add(WorkRequest{ID: 11, Opcode: OpSend, SGEs: []SGE{sge2}}))
	require.Equal(t, 2, b.Len())

	idx, code := b.PostSend(qp)
	require.Equal(t, status.Success, code)
	require.Equal(t, -1, idx)
}

func TestBatch_Add_RejectsBeyondCapacity(t *testing.T) {
	var b Batch
	for i := 0; i < MaxBatch; i++ {
		require.True(t, b.Add(WorkRequest{ID: uint64(i)}))
	}
	require.False(t, b.Add(WorkRequest{ID: 999}))
}
