package device

import (
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// CQ is a completion queue: a synthetic 32-bit handle onto a native fabric
// CQ, consumed by pkg/progress and pkg/completion.
type CQ struct {
	device   *Device
	id       uint32
	native   fabric.CQHandleNative
	capacity int
}

// ID returns the CQ's synthetic handle.
func (cq *CQ) ID() uint32 { return cq.id }

// Native exposes the underlying fabric CQ handle for the progress driver
// and the completion translator.
func (cq *CQ) Native() fabric.CQHandleNative { return cq.native }

// Capacity returns the CQ's requested entry capacity.
func (cq *CQ) Capacity() int { return cq.capacity }

// CreateCQ opens a completion queue with the requested capacity.
func (d *Device) CreateCQ(capacity int) (*CQ, status.Code) {
	native, err := d.provider.OpenCQ(d.domainHandle, fabric.CQAttr{Capacity: capacity, Format: fabric.CQFormatData})
	if err != nil {
		return nil, status.FromError(err)
	}

	cq := &CQ{device: d, id: d.cqIDSeq.Add(1), native: native, capacity: capacity}
	d.mu.Lock()
	d.cqs[cq.id] = cq
	d.mu.Unlock()
	return cq, status.Success
}

// DestroyCQ closes a completion queue. Fails with status.Busy if any QP
// still has it bound as a send or receive queue.
func (d *Device) DestroyCQ(cq *CQ) status.Code {
	d.mu.Lock()
	if _, ok := d.cqs[cq.id]; !ok {
		d.mu.Unlock()
		return status.NoEntry
	}
	for _, qp := range d.qps {
		if qp.sendCQ == cq || qp.recvCQ == cq {
			d.mu.Unlock()
			return status.Busy
		}
	}
	delete(d.cqs, cq.id)
	d.mu.Unlock()

	if err := d.provider.Close(cq.native); err != nil {
		return status.FromError(err)
	}
	return status.Success
}
