// Package mr implements the memory-region manager and its LRU cache
// (spec.md §4.3): fast-registration MRs, all-memory DMA MRs, and the
// reference-counted cache keyed by (address, length, access).
package mr

import (
	"sync/atomic"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/keymap"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// Domain is the narrow slice of a protection domain the MR manager needs:
// its fabric domain handle and the provider to issue registration calls
// against. pkg/device's PD type satisfies this interface structurally, so
// this package never imports pkg/device (pkg/device imports this package
// for its owned MR cache, and a two-way import would cycle).
type Domain interface {
	DomainHandle() fabric.DomainHandle
	FabricProvider() fabric.Provider
}

// Region is a registered memory region (spec.md §3 "Memory Region").
//
// Local and remote keys are equal by convention, following the reference
// implementation (an Open Question in spec.md §9 left this ambiguous; see
// DESIGN.md for the decision record). If a future provider needs them to
// differ, Region grows a second key field and the key translator grows a
// second mapping.
type Region struct {
	pd       Domain
	native   fabric.MRHandleNative
	base     uintptr
	length   uint64
	access   fabric.AccessFlag
	localKey uint32

	refcount atomic.Int32

	// cacheEntry is non-nil when this Region is backed by an MR-cache
	// entry; Deregister on a cached region is a caller error (the cache
	// owns deregistration) and is rejected.
	cacheEntry *cacheEntry
}

// Base returns the region's base virtual address.
func (r *Region) Base() uintptr { return r.base }

// Length returns the region's length in bytes.
func (r *Region) Length() uint64 { return r.length }

// Access returns the region's access-flag set.
func (r *Region) Access() fabric.AccessFlag { return r.access }

// LocalKey returns the externally visible 32-bit local key.
func (r *Region) LocalKey() uint32 { return r.localKey }

// RemoteKey returns the externally visible 32-bit remote key (equal to
// LocalKey by convention, see the type doc above).
func (r *Region) RemoteKey() uint32 { return r.localKey }

// Descriptor returns the provider-specific local descriptor used by send
// and RDMA calls that take an SGE.
func (r *Region) Descriptor() (any, error) {
	return r.pd.FabricProvider().MRDesc(r.native)
}

// Native exposes the underlying fabric MR handle, e.g. for building an
// fabric.SGE in the operation translator.
func (r *Region) Native() fabric.MRHandleNative { return r.native }

// Ref increments the reference count.
func (r *Region) Ref() int32 { return r.refcount.Add(1) }

// Unref decrements the reference count and returns the new value.
func (r *Region) Unref() int32 { return r.refcount.Add(-1) }

// RefCount returns the current reference count.
func (r *Region) RefCount() int32 { return r.refcount.Load() }

// registerKey is a small helper shared by Manager and Cache to mint the
// externally visible key for a freshly registered native MR.
func registerKey(keys *keymap.Translator, native uint64) (uint32, status.Code) {
	return keys.Register(native)
}
