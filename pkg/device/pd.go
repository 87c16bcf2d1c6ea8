package device

import (
	"sync/atomic"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
)

// PD is a protection domain: a reference-counted handle onto its device's
// single fabric domain. Every QP created under a PD bumps its refcount
// (CQs belong to the device, not to a PD); DeallocPD refuses to release a
// PD still in use.
type PD struct {
	device   *Device
	id       uint32
	handle   fabric.DomainHandle
	refcount atomic.Int32
}

// ID returns the PD's synthetic 32-bit handle.
func (pd *PD) ID() uint32 { return pd.id }

// Device returns the owning Device.
func (pd *PD) Device() *Device { return pd.device }

// DomainHandle satisfies mr.Domain.
func (pd *PD) DomainHandle() fabric.DomainHandle { return pd.handle }

// FabricProvider satisfies mr.Domain.
func (pd *PD) FabricProvider() fabric.Provider { return pd.device.provider }

func (pd *PD) ref()   { pd.refcount.Add(1) }
func (pd *PD) unref() { pd.refcount.Add(-1) }
