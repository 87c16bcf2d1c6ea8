// Package metrics wires the keymap, MR cache, and progress-engine metrics
// sinks to a lazily created Prometheus registry. Each sink interface
// (keymap.Metrics, mr.CacheMetrics, progress.Metrics) is satisfied by a
// concrete implementation registered from pkg/metrics/prometheus via an
// init-time constructor, the same indirection the teacher uses to keep
// pkg/metrics free of a direct prometheus import cycle with the package
// that owns the interface.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/keymap"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/mr"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/progress"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// SetEnabled turns metrics collection on or off. Called once at daemon
// startup from the loaded Tunables.Metrics.Enabled.
func SetEnabled(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the process-wide Prometheus registry, creating it on
// first use.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// Handler returns an http.Handler exposing the process-wide registry in
// Prometheus text format, for mounting under a daemon's metrics listener.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// newKeymapMetrics is supplied by pkg/metrics/prometheus's init function.
var newKeymapMetrics func() keymap.Metrics

// RegisterKeymapMetricsConstructor registers the Prometheus keymap metrics
// constructor. Called from pkg/metrics/prometheus during package init.
func RegisterKeymapMetricsConstructor(constructor func() keymap.Metrics) {
	newKeymapMetrics = constructor
}

// NewKeymapMetrics returns a keymap.Metrics sink, or nil when metrics are
// disabled (a nil sink is valid and becomes a no-op).
func NewKeymapMetrics() keymap.Metrics {
	if !IsEnabled() || newKeymapMetrics == nil {
		return nil
	}
	return newKeymapMetrics()
}

var newMRCacheMetrics func() mr.CacheMetrics

// RegisterMRCacheMetricsConstructor registers the Prometheus MR cache
// metrics constructor.
func RegisterMRCacheMetricsConstructor(constructor func() mr.CacheMetrics) {
	newMRCacheMetrics = constructor
}

// NewMRCacheMetrics returns an mr.CacheMetrics sink, or nil when metrics
// are disabled.
func NewMRCacheMetrics() mr.CacheMetrics {
	if !IsEnabled() || newMRCacheMetrics == nil {
		return nil
	}
	return newMRCacheMetrics()
}

var newProgressMetrics func() progress.Metrics

// RegisterProgressMetricsConstructor registers the Prometheus progress
// engine metrics constructor.
func RegisterProgressMetricsConstructor(constructor func() progress.Metrics) {
	newProgressMetrics = constructor
}

// NewProgressMetrics returns a progress.Metrics sink, or nil when metrics
// are disabled.
func NewProgressMetrics() progress.Metrics {
	if !IsEnabled() || newProgressMetrics == nil {
		return nil
	}
	return newProgressMetrics()
}
