package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced with defaults; explicit values are
// preserved.
func ApplyDefaults(t *Tunables) {
	applyLoggingDefaults(&t.Logging)
	applyTelemetryDefaults(&t.Telemetry)
	applyMetricsDefaults(&t.Metrics)
	applyControlPlaneDefaults(&t.ControlPlane)
	applyDeviceDefaults(&t.Device)
	applyVerbsDefaults(&t.Verbs)
	applyCQDefaults(&t.CQ)
	applyQPDefaults(&t.QP)
	applyMRCacheDefaults(&t.MRCache)
	applyProgressDefaults(&t.Progress)
	applyVNIDefaults(&t.VNI)

	if t.ShutdownTimeout == 0 {
		t.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyControlPlaneDefaults(cfg *ControlPlaneConfig) {
	if cfg.Enabled && cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
}

func applyDeviceDefaults(cfg *DeviceConfig) {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "cxi"
	}
	if cfg.DiscoverTimeout == 0 {
		cfg.DiscoverTimeout = 5 * time.Second
	}
	if len(cfg.SimulatedNodeNames) == 0 {
		cfg.SimulatedNodeNames = []string{"sim0"}
	}
}

// applyVerbsDefaults applies the work-request scatter-gather limits kfabric
// devices advertise in practice: 16 SGEs per request, 512 bytes of inline
// payload.
func applyVerbsDefaults(cfg *VerbsConfig) {
	if cfg.MaxSGE == 0 {
		cfg.MaxSGE = 16
	}
	if cfg.MaxInline == 0 {
		cfg.MaxInline = 512
	}
}

func applyCQDefaults(cfg *CQConfig) {
	if cfg.DefaultCapacity == 0 {
		cfg.DefaultCapacity = 1024
	}
}

func applyQPDefaults(cfg *QPConfig) {
	if cfg.DefaultDepth == 0 {
		cfg.DefaultDepth = 256
	}
}

func applyMRCacheDefaults(cfg *MRCacheConfig) {
	if cfg.Size == 0 {
		cfg.Size = 1024
	}
	if cfg.MaxRegions == 0 {
		cfg.MaxRegions = 8192
	}
}

func applyProgressDefaults(cfg *ProgressConfig) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Microsecond
	}
}

func applyVNIDefaults(cfg *VNIConfig) {
	if cfg.Max == 0 {
		cfg.Max = 65535
	}
}

// Default returns a Tunables with every field set to its documented
// default, as if loaded with no configuration file present.
func Default() *Tunables {
	t := &Tunables{}
	ApplyDefaults(t)
	return t
}
