package completion

import (
	"testing"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric/fabricsim"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
	"github.com/stretchr/testify/require"
)

func newCQ(t *testing.T) (*fabricsim.Provider, fabric.CQHandleNative) {
	t.Helper()
	sim := fabricsim.New()
	info := &fabric.Info{ProviderName: "cxi", NodeName: "dev0"}
	fh, err := sim.OpenFabric(info)
	require.NoError(t, err)
	dh, err := sim.OpenDomain(fh, info)
	require.NoError(t, err)
	cq, err := sim.OpenCQ(dh, fabric.CQAttr{Capacity: 16, Format: fabric.CQFormatData})
	require.NoError(t, err)
	return sim, cq
}

// TestDrainSuccess_BatchPreservesRequestIDsLengthsAndOpcodes drains a batch
// of success completions and checks request IDs, lengths, and
// flag-derived opcodes all come through intact.
func TestDrainSuccess_BatchPreservesRequestIDsLengthsAndOpcodes(t *testing.T) {
	sim, cq := newCQ(t)
	sim.PushTo(cq, fabric.CompletionEntry{Context: 1, Length: 64, OpFlags: fabric.OpFlagSend})
	sim.PushTo(cq, fabric.CompletionEntry{Context: 2, Length: 128, OpFlags: fabric.OpFlagRecv})
	sim.PushTo(cq, fabric.CompletionEntry{Context: 3, Length: 256, OpFlags: fabric.OpFlagRead})

	out := make([]WorkCompletion, 16)
	n, code := DrainSuccess(sim, cq, out)
	require.Equal(t, status.Success, code)
	require.Equal(t, 3, n)

	require.Equal(t, uint64(1), out[0].RequestID)
	require.Equal(t, uint64(64), out[0].ByteLength)
	require.Equal(t, OpSend, out[0].Opcode)
	require.Equal(t, status.WCSuccess, out[0].Status)

	require.Equal(t, OpRecv, out[1].Opcode)
	require.Equal(t, OpRead, out[2].Opcode)
}

func TestDrainSuccess_EmptyQueueIsTransient(t *testing.T) {
	sim, cq := newCQ(t)
	out := make([]WorkCompletion, 16)
	n, code := DrainSuccess(sim, cq, out)
	require.Equal(t, 0, n)
	require.Equal(t, status.Again, code)
	require.True(t, code.IsTransient())
}

func TestDrainSuccess_BlockedByPendingError(t *testing.T) {
	sim, cq := newCQ(t)
	sim.PushErrTo(cq, fabric.CQErrEntry{Context: 9, NativeErr: status.NativeEAccess()})

	out := make([]WorkCompletion, 16)
	n, code := DrainSuccess(sim, cq, out)
	require.Equal(t, 0, n)
	require.Equal(t, status.QueueOverrun, code)

	wc, code := DrainError(sim, cq)
	require.Equal(t, status.Success, code)
	require.Equal(t, uint64(9), wc.RequestID)
	require.Equal(t, status.WCLocalProtectionError, wc.Status)
}

func TestDrainError_CanceledMapsToFlushError(t *testing.T) {
	sim, cq := newCQ(t)
	sim.PushErrTo(cq, fabric.CQErrEntry{Context: 5, NativeErr: status.NativeECanceled(), ProvErr: 7})

	wc, code := DrainError(sim, cq)
	require.Equal(t, status.Success, code)
	require.Equal(t, status.WCFlushError, wc.Status)
	require.Equal(t, int32(7), wc.VendorError)
}

func TestDrainError_NoneAvailable(t *testing.T) {
	sim, cq := newCQ(t)
	_, code := DrainError(sim, cq)
	require.Equal(t, status.Other, code)
}
