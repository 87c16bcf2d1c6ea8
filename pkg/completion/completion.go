// Package completion implements the completion translator (spec.md §4.4):
// pure functions that turn native fabric completion-queue entries into
// verbs-style work completions.
package completion

import (
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// Opcode mirrors the verbs-style work-completion opcode.
type Opcode int

const (
	OpSend Opcode = iota
	OpRecv
	OpRead
	OpWrite
)

// WorkCompletion is the translated, verbs-shaped completion delivered to a
// caller polling a CQ.
type WorkCompletion struct {
	// RequestID is the opaque value the caller attached at post time,
	// carried through unchanged (spec.md §4.4).
	RequestID uint64
	// ByteLength is the number of bytes transferred, 0 for a send-side
	// completion that carries no length information.
	ByteLength uint64
	Opcode     Opcode
	Status     status.WCStatus
	// VendorError carries the raw provider error code when Status is not
	// WCSuccess, for diagnostics (spec.md §4.4).
	VendorError int32
}

// opcodeFromFlags derives a WorkCompletion opcode from the native flag
// bits. Send is the default when no flag is set, since kfabric's
// connectionless model has post_send completions that carry no explicit
// opcode bit distinct from a plain send (spec.md §4.4).
func opcodeFromFlags(flags fabric.OpFlag) Opcode {
	switch {
	case flags&fabric.OpFlagRead != 0:
		return OpRead
	case flags&fabric.OpFlagWrite != 0:
		return OpWrite
	case flags&fabric.OpFlagRecv != 0:
		return OpRecv
	default:
		return OpSend
	}
}

// DrainSuccess translates up to len(out) native success completions read
// from cq into WorkCompletions, returning how many entries of out were
// filled and the read status.
// Callers provide out pre-sized to the batch they intend to drain (spec.md
// §4.6's batch size of 16).
func DrainSuccess(provider fabric.Provider, cq fabric.CQHandleNative, out []WorkCompletion) (int, status.Code) {
	native := make([]fabric.CompletionEntry, len(out))
	n, nativeErr := provider.CQRead(cq, native)
	if n == 0 {
		// status.QueueOverrun here means an error completion is blocking
		// the queue; the caller must drain it with DrainError before more
		// successes can be read.
		return 0, status.FromNative(nativeErr)
	}

	for i := 0; i < n; i++ {
		e := native[i]
		out[i] = WorkCompletion{
			RequestID:  e.Context,
			ByteLength: e.Length,
			Opcode:     opcodeFromFlags(e.OpFlags),
			Status:     status.WCSuccess,
		}
	}
	return n, status.Success
}

// DrainError reads exactly one error completion from cq and translates it.
// Callers call this after CQRead (or DrainSuccess) signals QueueOverrun.
func DrainError(provider fabric.Provider, cq fabric.CQHandleNative) (WorkCompletion, status.Code) {
	e, err := provider.CQReadErr(cq, 0)
	if err != nil {
		return WorkCompletion{}, status.FromError(err)
	}

	code := status.FromNative(e.NativeErr)
	return WorkCompletion{
		RequestID:   e.Context,
		Status:      status.ToWorkCompletion(code),
		VendorError: e.ProvErr,
	}, status.Success
}
