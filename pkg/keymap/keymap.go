// Package keymap implements the bidirectional mapping between the 32-bit
// memory keys the verbs surface exposes and the 64-bit keys the fabric
// issues (spec.md §4.2).
package keymap

import (
	"sync"
	"sync/atomic"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// firstExternalKey is the first value handed out by the counter. Values
// below this are reserved and never allocated.
const firstExternalKey uint32 = 0x10000

// Metrics is the optional metrics sink for the key translator. A nil
// Metrics is valid and every method becomes a no-op, mirroring the
// teacher's nil-safe cache.CacheMetrics pattern.
type Metrics interface {
	SetEntries(n int)
}

type entry struct {
	external uint32
	native   uint64
	refcount int32
}

// Translator maintains the external<->native key mapping described in
// spec.md §4.2. The two internal structures are guarded by independent
// locks so that concurrent lookups in different directions never block
// each other; Register takes both, external lock first, to avoid
// deadlocking against a hypothetical reverse-order caller (spec.md §5).
type Translator struct {
	extMu  sync.RWMutex
	byExt  map[uint32]*entry
	natMu  sync.RWMutex
	byNat  map[uint64]*entry
	next   atomic.Uint64
	metric Metrics
}

// New creates an empty Translator.
func New(metric Metrics) *Translator {
	t := &Translator{
		byExt:  make(map[uint32]*entry),
		byNat:  make(map[uint64]*entry),
		metric: metric,
	}
	t.next.Store(uint64(firstExternalKey))
	return t
}

func (t *Translator) report() {
	if t.metric == nil {
		return
	}
	t.extMu.RLock()
	n := len(t.byExt)
	t.extMu.RUnlock()
	t.metric.SetEntries(n)
}

// Register allocates a fresh external key for nativeKey and inserts it into
// both structures with a reference count of 1.
//
// Allocation is monotonic starting at 0x10000; once the counter passes
// 0xFFFFFFFF, Register returns status.OutOfMemory. A duplicate external key
// can therefore only occur from a programming error; that case is reported
// as a fatal invariant violation via status.Other rather than silently
// overwritten.
func (t *Translator) Register(nativeKey uint64) (uint32, status.Code) {
	next := t.next.Add(1) - 1
	if next > uint64(^uint32(0)) {
		return 0, status.OutOfMemory
	}
	external := uint32(next)

	e := &entry{external: external, native: nativeKey, refcount: 1}

	t.extMu.Lock()
	if _, exists := t.byExt[external]; exists {
		t.extMu.Unlock()
		// Monotonic counter guarantees this never happens; surfaced as a
		// fatal invariant violation rather than silently corrupting state.
		return 0, status.Other
	}
	t.byExt[external] = e
	t.extMu.Unlock()

	t.natMu.Lock()
	t.byNat[nativeKey] = e
	t.natMu.Unlock()

	t.report()
	return external, status.Success
}

// LookupByExternal returns the native key registered for external, or
// status.NoEntry if none exists.
func (t *Translator) LookupByExternal(external uint32) (uint64, status.Code) {
	t.extMu.RLock()
	defer t.extMu.RUnlock()
	e, ok := t.byExt[external]
	if !ok {
		return 0, status.NoEntry
	}
	return e.native, status.Success
}

// LookupByNative returns the external key registered for native, or
// status.NoEntry if none exists.
func (t *Translator) LookupByNative(native uint64) (uint32, status.Code) {
	t.natMu.RLock()
	defer t.natMu.RUnlock()
	e, ok := t.byNat[native]
	if !ok {
		return 0, status.NoEntry
	}
	return e.external, status.Success
}

// Unregister removes the mapping for external. Idempotent: unregistering a
// key that is not present is not an error.
func (t *Translator) Unregister(external uint32) {
	t.extMu.Lock()
	e, ok := t.byExt[external]
	if ok {
		delete(t.byExt, external)
	}
	t.extMu.Unlock()
	if !ok {
		return
	}

	t.natMu.Lock()
	delete(t.byNat, e.native)
	t.natMu.Unlock()

	t.report()
}

// Shutdown removes every entry from the translator.
func (t *Translator) Shutdown() {
	t.extMu.Lock()
	t.byExt = make(map[uint32]*entry)
	t.extMu.Unlock()

	t.natMu.Lock()
	t.byNat = make(map[uint64]*entry)
	t.natMu.Unlock()

	t.report()
}

// Len returns the number of live entries. Used by tests and by the
// control-plane stats endpoint.
func (t *Translator) Len() int {
	t.extMu.RLock()
	defer t.extMu.RUnlock()
	return len(t.byExt)
}
