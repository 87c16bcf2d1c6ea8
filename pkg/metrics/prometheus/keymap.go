package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/keymap"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/metrics"
)

func init() {
	metrics.RegisterKeymapMetricsConstructor(NewKeymapMetrics)
}

// keymapMetrics is the Prometheus implementation of keymap.Metrics.
type keymapMetrics struct {
	entries prometheus.Gauge
}

// NewKeymapMetrics creates a new Prometheus-backed keymap.Metrics instance.
func NewKeymapMetrics() keymap.Metrics {
	reg := metrics.GetRegistry()
	return &keymapMetrics{
		entries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kfabric_keymap_entries",
			Help: "Current number of live external<->native key mappings",
		}),
	}
}

func (m *keymapMetrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
