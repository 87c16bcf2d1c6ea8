// Package verbs implements the operation translator (spec.md §4.7,
// component G): it walks a chain of verbs work requests, resolves each
// scatter-gather element's local key against the owning device's memory
// regions, and dispatches the translated operation to the fabric.
package verbs

// Opcode is a verbs work-request opcode.
type Opcode int

const (
	// OpSend is a one-sided message send.
	OpSend Opcode = iota
	// OpSendWithImm is OpSend carrying immediate data.
	OpSendWithImm
	// OpSendWithInvalidate has no kfabric equivalent; the translator
	// degrades it to OpSend and emits a once-per-QP diagnostic (spec.md §9).
	OpSendWithInvalidate
	// OpRDMAWrite writes local SGEs to a remote address.
	OpRDMAWrite
	// OpRDMAWriteWithImm is OpRDMAWrite carrying immediate data.
	OpRDMAWriteWithImm
	// OpRDMARead reads a remote address into local SGEs.
	OpRDMARead
	// OpAtomicCmpAndSwap is a remote compare-and-swap.
	OpAtomicCmpAndSwap
	// OpAtomicFetchAndAdd is a remote fetch-and-add.
	OpAtomicFetchAndAdd
)

// FabricOp is the fabric-facing operation kind a verbs Opcode classifies
// to, the Go analogue of kfabric's KFI_SEND/KFI_WRITE/KFI_READ/KFI_ATOMIC
// (_examples/original_source/include/kfi_internal.h's ib_opcode_to_kfi).
type FabricOp int

const (
	// FabricOpUnknown is returned for an opcode with no fabric translation,
	// matching the reference implementation's "default: return 0".
	FabricOpUnknown FabricOp = iota
	FabricOpSend
	FabricOpWrite
	FabricOpRead
	FabricOpAtomic
)

// ClassifyOpcode translates a verbs work-request opcode to the fabric
// operation kind that dispatches it (spec.md §8 concrete scenario 5).
// WITH_IMM variants collapse onto their base operation; anything with no
// fabric equivalent classifies as FabricOpUnknown.
func ClassifyOpcode(op Opcode) FabricOp {
	switch op {
	case OpSend, OpSendWithImm:
		return FabricOpSend
	case OpRDMAWrite, OpRDMAWriteWithImm:
		return FabricOpWrite
	case OpRDMARead:
		return FabricOpRead
	case OpAtomicCmpAndSwap, OpAtomicFetchAndAdd:
		return FabricOpAtomic
	default:
		return FabricOpUnknown
	}
}

// SGE is one (local key, address, length) scatter-gather element of a
// work request, named distinctly from fabric.SGE: this one carries the
// externally visible 32-bit local key a caller obtained from MR
// registration, not yet resolved to a fabric descriptor.
type SGE struct {
	LocalKey uint32
	Addr     uint64
	Length   uint64
}

// WorkRequest is one verbs operation, optionally chained to the next via
// Next so a single post_send/post_recv call can submit several (spec.md §3
// "Work Request (WR)").
type WorkRequest struct {
	// ID is the opaque request identifier forwarded verbatim as the fabric
	// operation context, so the completion translator can return it
	// unchanged (spec.md §4.7).
	ID uint64

	Opcode Opcode
	SGEs   []SGE

	// RemoteAddr and RemoteKey are consulted only for RDMA WRITE/READ.
	RemoteAddr uint64
	RemoteKey  uint64

	Next *WorkRequest
}
