package verbs

import (
	"github.com/hpc-fabrics/kfabric-verbs/pkg/device"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// MaxBatch is the fixed batch capacity (spec.md §3 "Batch context", B=16).
const MaxBatch = 16

// Batch is a bounded, stack-friendly collection of up to MaxBatch work
// requests submitted with a single call (spec.md §4.7 "batched submission
// is an optional fast path"). Unlike a WorkRequest chain, a Batch owns its
// storage as a fixed array rather than a linked list, so filling one never
// allocates.
type Batch struct {
	reqs [MaxBatch]WorkRequest
	n    int
}

// Reset empties the batch for reuse.
func (b *Batch) Reset() { b.n = 0 }

// Len returns the number of work requests currently queued in the batch.
func (b *Batch) Len() int { return b.n }

// Add appends a work request to the batch. Returns false if the batch is
// already at MaxBatch capacity.
func (b *Batch) Add(wr WorkRequest) bool {
	if b.n >= MaxBatch {
		return false
	}
	b.reqs[b.n] = wr
	b.n++
	return true
}

// chain links the batch's requests into a WorkRequest list in insertion
// order, the shape PostSend/PostRecv walk.
func (b *Batch) chain() *WorkRequest {
	if b.n == 0 {
		return nil
	}
	for i := 0; i < b.n-1; i++ {
		b.reqs[i].Next = &b.reqs[i+1]
	}
	b.reqs[b.n-1].Next = nil
	return &b.reqs[0]
}

// PostSend submits every work request in the batch sequentially under qp's
// send lock, in order, returning the first failing request's index (or -1
// on full success) and its status. The current specification submits
// sequentially; a provider "more pending" hint is not part of the
// fabric.Provider contract, so no batching optimization is attempted
// beyond sequential submission (spec.md §4.7).
func (b *Batch) PostSend(qp *device.QP) (int, status.Code) {
	first := b.chain()
	failing, code := PostSend(qp, first)
	return b.indexOf(failing), code
}

// PostRecv is PostSend's receive-path counterpart.
func (b *Batch) PostRecv(qp *device.QP) (int, status.Code) {
	first := b.chain()
	failing, code := PostRecv(qp, first)
	return b.indexOf(failing), code
}

// indexOf returns the index within reqs of the given pointer, or -1 if nil
// or not found (full success).
func (b *Batch) indexOf(wr *WorkRequest) int {
	if wr == nil {
		return -1
	}
	for i := 0; i < b.n; i++ {
		if &b.reqs[i] == wr {
			return i
		}
	}
	return -1
}
