// Package device implements the device, protection-domain, completion-queue
// and queue-pair lifecycle (spec.md §4.6, component F): discovery, the
// synthetic handle pools the verbs surface hands callers, and the queue-pair
// state machine.
package device

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hpc-fabrics/kfabric-verbs/internal/logger"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/keymap"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/mr"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// Device owns one discovered fabric instance: its fabric/domain handles,
// its key translator, and its memory-region manager and cache. Every PD,
// CQ and QP opened against a Device shares its single domain handle, the
// way a kfabric domain is shared by everything opened under it.
type Device struct {
	Name string
	Info *fabric.Info

	provider     fabric.Provider
	fabricHandle fabric.FabricHandle
	domainHandle fabric.DomainHandle

	keys    *keymap.Translator
	mrMgr   *mr.Manager
	MRCache *mr.Cache

	mu  sync.RWMutex
	pds map[uint32]*PD
	cqs map[uint32]*CQ
	qps map[uint32]*QP

	mrMu sync.RWMutex
	mrs  map[uint32]*mr.Region

	pdIDSeq atomic.Uint32
	cqIDSeq atomic.Uint32
	qpIDSeq atomic.Uint32

	closed bool
}

// newDevice wraps an already-opened fabric/domain handle pair. Unexported:
// callers obtain Devices through Discover.
func newDevice(name string, provider fabric.Provider, info *fabric.Info, fh fabric.FabricHandle, dh fabric.DomainHandle, keyMetrics keymap.Metrics, cacheMetrics mr.CacheMetrics, mrCacheCapacity int, maxSGE int) *Device {
	keys := keymap.New(keyMetrics)
	mgr := mr.NewManager(keys, maxSGE)
	d := &Device{
		Name:         name,
		Info:         info,
		provider:     provider,
		fabricHandle: fh,
		domainHandle: dh,
		keys:         keys,
		mrMgr:        mgr,
		pds:          make(map[uint32]*PD),
		cqs:          make(map[uint32]*CQ),
		qps:          make(map[uint32]*QP),
		mrs:          make(map[uint32]*mr.Region),
	}
	d.MRCache = mr.NewCache(mgr, mrCacheCapacity, cacheMetrics)
	return d
}

// FabricProvider returns the device's underlying fabric.Provider. Exposed
// so PD and Device satisfy mr.Domain and so the verbs layer can issue
// Send/Recv/Read/Write calls directly.
func (d *Device) FabricProvider() fabric.Provider { return d.provider }

// DomainHandle returns the device's fabric domain handle, satisfying
// mr.Domain so the device can drive its own MR cache's Destroy during
// teardown without going through a PD.
func (d *Device) DomainHandle() fabric.DomainHandle { return d.domainHandle }

// MRManager returns the device's fast-registration/all-memory-DMA manager.
func (d *Device) MRManager() *mr.Manager { return d.mrMgr }

// FastRegisterMR allocates a fast-registration MR and tracks it under its
// external key so the operation translator can resolve a work request's
// local-key field back to the Region (spec.md §4.7: "the local key field is
// interpreted as a typed handle to an MR").
func (d *Device) FastRegisterMR(pd mr.Domain, access fabric.AccessFlag) (*mr.Region, status.Code) {
	r, code := d.mrMgr.FastRegister(pd, access)
	if code != status.Success {
		return nil, code
	}
	d.trackMR(r)
	return r, status.Success
}

// AllMemoryDMAMR allocates an all-memory DMA MR and tracks it under its
// external key, same as FastRegisterMR.
func (d *Device) AllMemoryDMAMR(pd mr.Domain, access fabric.AccessFlag) (*mr.Region, status.Code) {
	r, code := d.mrMgr.AllMemoryDMA(pd, access)
	if code != status.Success {
		return nil, code
	}
	d.trackMR(r)
	return r, status.Success
}

// DeregisterMR deregisters r via the manager and drops it from the lookup
// table.
func (d *Device) DeregisterMR(r *mr.Region) status.Code {
	code := d.mrMgr.Deregister(r)
	if code != status.Success {
		return code
	}
	d.mrMu.Lock()
	delete(d.mrs, r.LocalKey())
	d.mrMu.Unlock()
	return status.Success
}

// LookupMR resolves a work request's local-key field to the Region it
// names. Cached MRs (obtained via MRCache.Get) are tracked the same way, so
// a single lookup table serves both fast-registration and cached regions.
func (d *Device) LookupMR(key uint32) (*mr.Region, bool) {
	d.mrMu.RLock()
	defer d.mrMu.RUnlock()
	r, ok := d.mrs[key]
	return r, ok
}

// TrackCachedMR registers a Region obtained from the MR cache under its
// external key, so LookupMR can resolve it. The MR cache itself has no
// notion of external keys; the device is the seam where both the manager's
// own registrations and cache hits become resolvable by key.
func (d *Device) TrackCachedMR(r *mr.Region) { d.trackMR(r) }

func (d *Device) trackMR(r *mr.Region) {
	d.mrMu.Lock()
	d.mrs[r.LocalKey()] = r
	d.mrMu.Unlock()
}

// Keys returns the device's external<->native key translator.
func (d *Device) Keys() *keymap.Translator { return d.keys }

// QPs returns a snapshot of the device's live queue pairs, sorted by ID.
// Consumed by pkg/controlplane's per-device QP listing.
func (d *Device) QPs() []*QP {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*QP, 0, len(d.qps))
	for _, qp := range d.qps {
		out = append(out, qp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// AllocPD allocates a protection domain. Every PD on a device shares the
// device's single fabric domain handle: the verbs-level PD is a reference-
// counted handle onto it, not a separate fabric resource (spec.md §4.6).
func (d *Device) AllocPD() *PD {
	pd := &PD{device: d, id: d.pdIDSeq.Add(1), handle: d.domainHandle}
	pd.refcount.Store(1)

	d.mu.Lock()
	d.pds[pd.id] = pd
	d.mu.Unlock()
	return pd
}

// DeallocPD releases a PD. Returns false if the PD is unknown or still has
// QPs referencing it.
func (d *Device) DeallocPD(pd *PD) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pds[pd.id]; !ok {
		return false
	}
	if pd.refcount.Load() > 1 {
		return false
	}
	delete(d.pds, pd.id)
	return true
}

// Close tears down every CQ/QP/PD and the device's fabric handles. Any
// memory regions still held in the MR cache are forcibly released.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	qps := d.qps
	cqs := d.cqs
	d.qps = make(map[uint32]*QP)
	d.cqs = make(map[uint32]*CQ)
	d.pds = make(map[uint32]*PD)
	d.mu.Unlock()

	for _, qp := range qps {
		_ = d.provider.Close(qp.native)
	}
	for _, cq := range cqs {
		_ = d.provider.Close(cq.native)
	}

	if forced := d.MRCache.Destroy(d); forced > 0 {
		logger.Warn("device closed with referenced memory regions still cached", "device", d.Name, "count", forced)
	}
	d.keys.Shutdown()

	if err := d.provider.Close(d.domainHandle); err != nil {
		return err
	}
	return d.provider.Close(d.fabricHandle)
}
