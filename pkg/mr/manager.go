package mr

import (
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/keymap"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// DefaultMaxSGE is the ceiling on scatter-gather segments per vectored
// operation (spec.md §4.3, §4.7). Mirrors the verbs IBV_WC limit the
// reference implementation inherits.
const DefaultMaxSGE = 16

// allMemoryLength is the sentinel length passed to the provider when
// registering an all-memory DMA MR: the region spans the full address
// space rather than one bounded buffer (spec.md §4.3).
const allMemoryLength = ^uint64(0)

// Manager registers and deregisters memory regions directly against a
// protection domain, independent of the MR cache (component C's
// fast-registration and all-memory-DMA paths, spec.md §4.3).
//
// Grounded on the teacher's identity.CachedMapper: a small struct wrapping
// one collaborator (here, the key translator) behind a handful of
// allocation methods, no hidden global state.
type Manager struct {
	keys   *keymap.Translator
	maxSGE int
}

// NewManager creates a Manager. maxSGE of 0 selects DefaultMaxSGE.
func NewManager(keys *keymap.Translator, maxSGE int) *Manager {
	if maxSGE <= 0 {
		maxSGE = DefaultMaxSGE
	}
	return &Manager{keys: keys, maxSGE: maxSGE}
}

// MaxSGE returns the configured scatter-gather segment ceiling.
func (m *Manager) MaxSGE() int { return m.maxSGE }

// FastRegister allocates an empty, zero-length fast-registration MR on pd.
// The region must be populated with MapSG before use in an operation.
func (m *Manager) FastRegister(pd Domain, access fabric.AccessFlag) (*Region, status.Code) {
	native, nativeKey, err := pd.FabricProvider().MRReg(pd.DomainHandle(), 0, 0, access, 0, fabric.MRRegFastReg)
	if err != nil {
		return nil, status.FromError(err)
	}

	ext, code := registerKey(m.keys, nativeKey)
	if code != status.Success {
		_ = pd.FabricProvider().Close(native)
		return nil, code
	}

	r := &Region{pd: pd, native: native, access: access, localKey: ext}
	r.Ref() // owner's reference; Deregister requires it back at 1
	return r, status.Success
}

// MapSG populates a fast-registration region from a scatter-gather list.
// Fails with status.InvalidArgument without touching the provider if sg
// exceeds the manager's MaxSGE (spec.md §4.3, §4.7 "map_sg count >
// MAX_SGE fails invalid-argument without touching the MR").
func (m *Manager) MapSG(r *Region, sg []fabric.SGE, offset, pageSize uint64) (int, status.Code) {
	if len(sg) > m.maxSGE {
		return 0, status.InvalidArgument
	}
	if len(sg) == 0 {
		return 0, status.InvalidArgument
	}

	n, err := r.pd.FabricProvider().MapSG(r.native, sg, offset, pageSize)
	if err != nil {
		return 0, status.FromError(err)
	}

	var length uint64
	for i := 0; i < n && i < len(sg); i++ {
		length += sg[i].Length
	}
	r.length = length
	if n > 0 {
		r.base = uintptr(sg[0].Addr)
	}
	return n, status.Success
}

// AllMemoryDMA registers an all-memory DMA MR on pd: a single region that
// spans the full address space, used by callers that want to post RDMA
// operations against arbitrary local buffers without per-buffer
// registration (spec.md §4.3, §9).
func (m *Manager) AllMemoryDMA(pd Domain, access fabric.AccessFlag) (*Region, status.Code) {
	native, nativeKey, err := pd.FabricProvider().MRReg(pd.DomainHandle(), 0, allMemoryLength, access, 0, 0)
	if err != nil {
		return nil, status.FromError(err)
	}

	ext, code := registerKey(m.keys, nativeKey)
	if code != status.Success {
		_ = pd.FabricProvider().Close(native)
		return nil, code
	}

	r := &Region{pd: pd, native: native, access: access, localKey: ext, length: allMemoryLength}
	r.Ref() // owner's reference; Deregister requires it back at 1
	return r, status.Success
}

// Deregister releases a region obtained directly from Manager (not from the
// Cache, which owns deregistration of its own entries). Fails with
// status.Busy if the region is still referenced by an in-flight operation
// (refcount > 1; every live Region starts at refcount 1 for its owner).
func (m *Manager) Deregister(r *Region) status.Code {
	if r.cacheEntry != nil {
		return status.InvalidArgument
	}
	if r.RefCount() > 1 {
		return status.Busy
	}

	if err := r.pd.FabricProvider().Close(r.native); err != nil {
		return status.FromError(err)
	}
	m.keys.Unregister(r.localKey)
	return status.Success
}
