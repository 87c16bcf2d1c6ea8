package mr

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

// CacheMetrics is the optional metrics sink for the MR cache. A nil
// CacheMetrics is valid; every method becomes a no-op (the teacher's
// nil-safe metrics pattern, see pkg/keymap.Metrics).
type CacheMetrics interface {
	Hit()
	Miss()
	Eviction()
}

// cacheKey is the (address, length, access) tuple the MR cache indexes on
// (spec.md §4.3).
type cacheKey struct {
	addr   uintptr
	length uint64
	access fabric.AccessFlag
}

// less implements the cache's fixed tie-break ordering: address, then
// length, then access. Used only to make eviction order deterministic when
// two entries share a last-access timestamp.
func (k cacheKey) less(o cacheKey) int {
	if c := cmp.Compare(k.addr, o.addr); c != 0 {
		return c
	}
	if c := cmp.Compare(k.length, o.length); c != 0 {
		return c
	}
	return cmp.Compare(k.access, o.access)
}

type cacheEntry struct {
	key        cacheKey
	region     *Region
	lastAccess time.Time
}

// Cache is the reference-counted LRU of registered memory regions keyed by
// (addr, len, access) (spec.md §4.3). A region already present for a
// requested tuple is returned with its refcount bumped instead of being
// re-registered with the provider; a region is only evicted once nothing
// still references it.
//
// Grounded on the teacher's pkg/cache LRU: one mutex guards both the index
// and eviction, and eviction snapshots the live entries and sorts them by
// last access (pkg/cache/eviction.go's evictLRUToTarget) rather than
// maintaining a separate intrusive list — simpler, and cheap enough at the
// cache sizes this shim expects (a handful of hot buffers per device).
type Cache struct {
	mu       sync.Mutex
	entries  map[cacheKey]*cacheEntry
	mgr      *Manager
	capacity int // 0 = unlimited
	metric   CacheMetrics
}

// NewCache creates an MR cache backed by mgr for registration/
// deregistration. capacity is the maximum number of distinct (addr, len,
// access) regions held at once; 0 means unlimited.
func NewCache(mgr *Manager, capacity int, metric CacheMetrics) *Cache {
	return &Cache{
		entries:  make(map[cacheKey]*cacheEntry),
		mgr:      mgr,
		capacity: capacity,
		metric:   metric,
	}
}

func (c *Cache) hit() {
	if c.metric != nil {
		c.metric.Hit()
	}
}

func (c *Cache) miss() {
	if c.metric != nil {
		c.metric.Miss()
	}
}

func (c *Cache) evicted() {
	if c.metric != nil {
		c.metric.Eviction()
	}
}

// Get returns the cached region for (addr, length, access) on pd, ref-
// counting and reusing an existing registration on a hit, or registering a
// new all-memory-style MR covering exactly [addr, addr+length) on a miss.
// Every returned Region must be released with Put.
func (c *Cache) Get(pd Domain, addr uintptr, length uint64, access fabric.AccessFlag) (*Region, status.Code) {
	key := cacheKey{addr: addr, length: length, access: access}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.region.Ref()
		e.lastAccess = time.Now()
		c.mu.Unlock()
		c.hit()
		return e.region, status.Success
	}
	c.mu.Unlock()

	c.miss()

	native, nativeKey, err := pd.FabricProvider().MRReg(pd.DomainHandle(), addr, length, access, 0, 0)
	if err != nil {
		return nil, status.FromError(err)
	}
	ext, code := registerKey(c.mgr.keys, nativeKey)
	if code != status.Success {
		_ = pd.FabricProvider().Close(native)
		return nil, code
	}

	region := &Region{pd: pd, native: native, base: addr, length: length, access: access, localKey: ext}
	entry := &cacheEntry{key: key, region: region, lastAccess: time.Now()}
	region.cacheEntry = entry
	region.Ref() // the cache's own baseline reference
	region.Ref() // this call's reference, released by the caller's Put

	c.mu.Lock()
	c.entries[key] = entry
	c.evictLocked(pd)
	c.mu.Unlock()

	return region, status.Success
}

// Put releases one reference to a cached region obtained from Get. It does
// not evict immediately: eviction only happens when the cache is over
// capacity and an entry's refcount has dropped back to the cache's own
// reference (spec.md §4.3's "refcount-gated eviction").
func (c *Cache) Put(r *Region) {
	r.Unref()
}

// evictLocked evicts least-recently-used entries with no outstanding
// external references until the cache is back at capacity. Must be called
// with c.mu held.
func (c *Cache) evictLocked(pd Domain) {
	if c.capacity <= 0 || len(c.entries) <= c.capacity {
		return
	}

	candidates := make([]*cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		// refcount == 1 means only the cache itself still holds it.
		if e.region.RefCount() <= 1 {
			candidates = append(candidates, e)
		}
	}
	slices.SortFunc(candidates, func(a, b *cacheEntry) int {
		if c := a.lastAccess.Compare(b.lastAccess); c != 0 {
			return c
		}
		return a.key.less(b.key)
	})

	for _, e := range candidates {
		if len(c.entries) <= c.capacity {
			break
		}
		delete(c.entries, e.key)
		_ = pd.FabricProvider().Close(e.region.native)
		c.mgr.keys.Unregister(e.region.localKey)
		c.evicted()
	}
}

// Flush evicts every entry with no outstanding external references,
// regardless of capacity. Entries still referenced by an in-flight
// operation are left in place.
func (c *Cache) Flush(pd Domain) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	flushed := 0
	for key, e := range c.entries {
		if e.region.RefCount() > 1 {
			continue
		}
		delete(c.entries, key)
		_ = pd.FabricProvider().Close(e.region.native)
		c.mgr.keys.Unregister(e.region.localKey)
		c.evicted()
		flushed++
	}
	return flushed
}

// Destroy unconditionally releases every cached region, including ones
// still referenced, for use during device teardown. Returns the number of
// regions forcibly released with an outstanding reference, for logging.
func (c *Cache) Destroy(pd Domain) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	forced := 0
	for key, e := range c.entries {
		if e.region.RefCount() > 1 {
			forced++
		}
		delete(c.entries, key)
		_ = pd.FabricProvider().Close(e.region.native)
		c.mgr.keys.Unregister(e.region.localKey)
	}
	return forced
}

// Len returns the number of distinct cached regions. Used by tests and the
// control-plane stats endpoint.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

