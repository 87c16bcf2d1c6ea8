package verbs

import (
	"unsafe"

	"github.com/hpc-fabrics/kfabric-verbs/internal/logger"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/device"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// PostSend walks the work-request chain starting at first under qp's send
// lock, translating and dispatching each request in order (spec.md §4.7).
// On success every request was submitted; on failure, the returned
// *WorkRequest is the first one that failed and nothing after it in the
// chain was touched, matching the reference implementation's "first
// failing request" contract.
func PostSend(qp *device.QP, first *WorkRequest) (*WorkRequest, status.Code) {
	qp.SendMu.Lock()
	defer qp.SendMu.Unlock()

	for wr := first; wr != nil; wr = wr.Next {
		if code := postOne(qp, wr); code != status.Success {
			return wr, code
		}
	}
	return nil, status.Success
}

// PostRecv walks the work-request chain starting at first under qp's
// receive lock, posting a receive buffer for each request. Only the SGE
// list is consulted; RemoteAddr/RemoteKey and Opcode are ignored, following
// verbs' own post_recv semantics (a receive has no direction or opcode).
func PostRecv(qp *device.QP, first *WorkRequest) (*WorkRequest, status.Code) {
	qp.RecvMu.Lock()
	defer qp.RecvMu.Unlock()

	for wr := first; wr != nil; wr = wr.Next {
		fsges, code := resolveSGEs(qp.Device(), wr.SGEs)
		if code != status.Success {
			return wr, code
		}

		var err error
		switch len(fsges) {
		case 0:
			return wr, status.InvalidArgument
		case 1:
			buf, desc := singleBuf(fsges[0])
			err = qp.Device().FabricProvider().Recv(qp.Native(), buf, desc, wr.ID)
		default:
			err = qp.Device().FabricProvider().RecvV(qp.Native(), fsges, wr.ID)
		}
		if code := dispatchResult(err); code != status.Success {
			return wr, code
		}
	}
	return nil, status.Success
}

// postOne translates and submits a single work request.
func postOne(qp *device.QP, wr *WorkRequest) status.Code {
	switch wr.Opcode {
	case OpSend, OpSendWithImm:
		return postSend(qp, wr)
	case OpSendWithInvalidate:
		if qp.WarnInvalidateOnce() {
			logger.Warn("SEND_WITH_INVALIDATE has no kfabric equivalent; degrading to SEND", "qp", qp.ID())
		}
		return postSend(qp, wr)
	case OpRDMAWrite, OpRDMAWriteWithImm:
		return postRDMA(qp, wr, true)
	case OpRDMARead:
		return postRDMA(qp, wr, false)
	case OpAtomicCmpAndSwap, OpAtomicFetchAndAdd:
		// Classified as FabricOpAtomic, but fabric.Provider exposes no
		// atomic primitive to dispatch to.
		return status.Unsupported
	default:
		return status.Unsupported
	}
}

func postSend(qp *device.QP, wr *WorkRequest) status.Code {
	fsges, code := resolveSGEs(qp.Device(), wr.SGEs)
	if code != status.Success {
		return code
	}

	var err error
	switch len(fsges) {
	case 0:
		return status.InvalidArgument
	case 1:
		buf, desc := singleBuf(fsges[0])
		err = qp.Device().FabricProvider().Send(qp.Native(), buf, desc, wr.ID)
	default:
		err = qp.Device().FabricProvider().SendV(qp.Native(), fsges, wr.ID)
	}
	return dispatchResult(err)
}

func postRDMA(qp *device.QP, wr *WorkRequest, write bool) status.Code {
	fsges, code := resolveSGEs(qp.Device(), wr.SGEs)
	if code != status.Success {
		return code
	}

	provider := qp.Device().FabricProvider()
	var err error
	switch len(fsges) {
	case 0:
		return status.InvalidArgument
	case 1:
		buf, desc := singleBuf(fsges[0])
		if write {
			err = provider.Write(qp.Native(), buf, desc, wr.RemoteAddr, wr.RemoteKey, wr.ID)
		} else {
			err = provider.Read(qp.Native(), buf, desc, wr.RemoteAddr, wr.RemoteKey, wr.ID)
		}
	default:
		if write {
			err = provider.WriteV(qp.Native(), fsges, wr.RemoteAddr, wr.RemoteKey, wr.ID)
		} else {
			err = provider.ReadV(qp.Native(), fsges, wr.RemoteAddr, wr.RemoteKey, wr.ID)
		}
	}
	return dispatchResult(err)
}

// resolveSGEs resolves every SGE's local key against dev's MR table and
// checks the count is within the device MR manager's MaxSGE, without
// mutating any MR (spec.md §8 boundary case: "map_sg with SGE count >
// MAX_SGE fails invalid-argument without touching the MR" applies the same
// shape here).
func resolveSGEs(dev *device.Device, sges []SGE) ([]fabric.SGE, status.Code) {
	if len(sges) > dev.MRManager().MaxSGE() {
		return nil, status.InvalidArgument
	}

	out := make([]fabric.SGE, len(sges))
	for i, s := range sges {
		region, ok := dev.LookupMR(s.LocalKey)
		if !ok {
			return nil, status.InvalidArgument
		}
		out[i] = fabric.SGE{Addr: s.Addr, Length: s.Length, Desc: region.Native()}
	}
	return out, status.Success
}

// singleBuf builds the []byte and provider descriptor a non-vectored send
// needs from a single resolved SGE. The fabric.SGE carries the raw virtual
// address of caller-owned, already-registered memory; unsafe.Slice is the
// standard way a Go verbs shim views such a range without copying it.
func singleBuf(sge fabric.SGE) ([]byte, any) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(sge.Addr))), sge.Length)
	return buf, sge.Desc
}

// dispatchResult translates a fabric call's error into backpressure
// handling (spec.md §4.7): a transient error stops the chain and is
// reported on the current request; anything else maps normally.
func dispatchResult(err error) status.Code {
	return status.FromError(err)
}
