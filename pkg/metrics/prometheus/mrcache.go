package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/metrics"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/mr"
)

func init() {
	metrics.RegisterMRCacheMetricsConstructor(NewMRCacheMetrics)
}

// mrCacheMetrics is the Prometheus implementation of mr.CacheMetrics.
type mrCacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
}

// NewMRCacheMetrics creates a new Prometheus-backed mr.CacheMetrics
// instance, grounded on the teacher's cacheMetrics counters
// (pkg/metrics/prometheus/cache.go's writeOperations/readOperations shape,
// collapsed to the three events the MR cache actually reports).
func NewMRCacheMetrics() mr.CacheMetrics {
	reg := metrics.GetRegistry()
	return &mrCacheMetrics{
		hits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kfabric_mr_cache_hits_total",
			Help: "Total number of MR cache lookups that reused an existing registration",
		}),
		misses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kfabric_mr_cache_misses_total",
			Help: "Total number of MR cache lookups that required a new registration",
		}),
		evictions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kfabric_mr_cache_evictions_total",
			Help: "Total number of MR cache entries evicted to make room for a new registration",
		}),
	}
}

func (m *mrCacheMetrics) Hit() {
	if m == nil {
		return
	}
	m.hits.Inc()
}

func (m *mrCacheMetrics) Miss() {
	if m == nil {
		return
	}
	m.misses.Inc()
}

func (m *mrCacheMetrics) Eviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}
