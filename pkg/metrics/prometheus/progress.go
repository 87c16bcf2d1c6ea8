package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/metrics"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/progress"
)

func init() {
	metrics.RegisterProgressMetricsConstructor(NewProgressMetrics)
}

// progressMetrics is the Prometheus implementation of progress.Metrics.
type progressMetrics struct {
	pollBatches   prometheus.Histogram
	pollEmpty     prometheus.Counter
	backoffEvents *prometheus.CounterVec
	breakerOpens  prometheus.Counter
}

// NewProgressMetrics creates a new Prometheus-backed progress.Metrics
// instance, tracking the drain loop's batch sizes, empty polls, backoff
// events by kind, and polls skipped while the circuit breaker is open.
func NewProgressMetrics() progress.Metrics {
	reg := metrics.GetRegistry()
	return &progressMetrics{
		pollBatches: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "kfabric_progress_poll_batch_size",
			Help:    "Distribution of completion counts drained per CQRead call",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		}),
		pollEmpty: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kfabric_progress_poll_empty_total",
			Help: "Total number of poll iterations that drained zero completions",
		}),
		backoffEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kfabric_progress_backoff_total",
			Help: "Total number of backoff events by kind",
		}, []string{"kind"}),
		breakerOpens: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kfabric_progress_breaker_open_total",
			Help: "Total number of poll attempts skipped because a device's circuit breaker was open",
		}),
	}
}

func (m *progressMetrics) PollBatch(n int) {
	if m == nil {
		return
	}
	m.pollBatches.Observe(float64(n))
}

func (m *progressMetrics) PollEmpty() {
	if m == nil {
		return
	}
	m.pollEmpty.Inc()
}

func (m *progressMetrics) Backoff(kind string) {
	if m == nil {
		return
	}
	m.backoffEvents.WithLabelValues(kind).Inc()
}

func (m *progressMetrics) BreakerOpen() {
	if m == nil {
		return
	}
	m.breakerOpens.Inc()
}
