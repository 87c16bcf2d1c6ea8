// Package config holds the daemon's static tunables: the scatter-gather and
// completion-queue limits the operation translator enforces, the memory
// registration cache bounds, the ambient VNI and progress-engine cadence,
// and the logging/telemetry/control-plane surface around them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Tunables is the daemon's static configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (KFABRIC_*), for keys the configuration file sets
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// When no configuration file is found, Load returns Default() and does not
// read the environment.
type Tunables struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ControlPlane contains the read-only inspection HTTP server configuration.
	ControlPlane ControlPlaneConfig `mapstructure:"controlplane" yaml:"controlplane"`

	// Device controls fabric discovery.
	Device DeviceConfig `mapstructure:"device" yaml:"device"`

	// Verbs controls the operation translator's scatter-gather limits.
	Verbs VerbsConfig `mapstructure:"verbs" yaml:"verbs"`

	// CQ controls completion queue defaults.
	CQ CQConfig `mapstructure:"cq" yaml:"cq"`

	// QP controls queue pair defaults.
	QP QPConfig `mapstructure:"qp" yaml:"qp"`

	// MRCache controls the memory registration cache.
	MRCache MRCacheConfig `mapstructure:"mr_cache" yaml:"mr_cache"`

	// Progress controls the progress-engine poll cadence.
	Progress ProgressConfig `mapstructure:"progress" yaml:"progress"`

	// VNI bounds the virtual network identifiers a QP may resolve to.
	VNI VNIConfig `mapstructure:"vni" yaml:"vni"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	// Default: false (opt-in).
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	// Default: "localhost:4317".
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server are active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint. Default: 9090.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ControlPlaneConfig configures the read-only device/QP/MR-cache/progress
// inspection HTTP surface.
type ControlPlaneConfig struct {
	// Enabled controls whether the inspection HTTP server is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the listen address, e.g. ":8080".
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DeviceConfig controls fabric discovery (spec.md §4.8).
type DeviceConfig struct {
	// ProviderName selects the kfabric provider to discover devices on.
	// Default: "cxi" (also the provider name fabricsim seeds its simulated
	// nodes under, since no real kfabric provider ships in this module).
	ProviderName string `mapstructure:"provider_name" yaml:"provider_name"`

	// DiscoverTimeout bounds how long device discovery may block.
	DiscoverTimeout time.Duration `mapstructure:"discover_timeout" validate:"required,gt=0" yaml:"discover_timeout"`

	// SimulatedNodeNames seeds pkg/fabric/fabricsim with one Info per name.
	// Only meaningful when the daemon is built without a real kfabric
	// provider linked in (the only Provider this module ships is
	// fabricsim); a real deployment links a provider that reports its own
	// nodes from hardware and leaves this empty.
	SimulatedNodeNames []string `mapstructure:"simulated_node_names" yaml:"simulated_node_names"`
}

// VerbsConfig controls the operation translator's scatter-gather limits
// (spec.md §3 "MAX_SGE", "MAX_INLINE").
type VerbsConfig struct {
	// MaxSGE is the maximum number of scatter-gather elements a single work
	// request may carry before the translator rejects it with
	// invalid-argument. Default: 16.
	MaxSGE int `mapstructure:"max_sge" validate:"required,gt=0" yaml:"max_sge"`

	// MaxInline is the inline-send payload limit, in bytes. Default: 512.
	// It is loaded and validated only: pkg/verbs has no inline send path
	// and does not read it.
	MaxInline int `mapstructure:"max_inline" validate:"required,gt=0" yaml:"max_inline"`
}

// CQConfig controls completion queue defaults.
type CQConfig struct {
	// DefaultCapacity is the entry count used when a caller does not specify
	// one explicitly. Default: 1024.
	DefaultCapacity int `mapstructure:"default_capacity" validate:"required,gt=0" yaml:"default_capacity"`
}

// QPConfig controls queue pair defaults.
type QPConfig struct {
	// DefaultDepth is the send/receive queue depth setting. Default: 256.
	// It is loaded and validated only: device.CreateQP takes no depth and
	// does not read it.
	DefaultDepth int `mapstructure:"default_depth" validate:"required,gt=0" yaml:"default_depth"`
}

// MRCacheConfig controls the memory registration cache (spec.md §4.3).
type MRCacheConfig struct {
	// Size is the maximum number of cached registrations retained for reuse.
	// Default: 1024.
	Size int `mapstructure:"size" validate:"required,gt=0" yaml:"size"`

	// MaxRegions is the per-device registration ceiling setting. Default:
	// 8192. It is loaded and validated only: pkg/mr does not read it and
	// enforces no limit on live registrations.
	MaxRegions int `mapstructure:"max_regions" validate:"required,gt=0" yaml:"max_regions"`
}

// ProgressConfig holds the progress engine's poll-interval setting (spec.md §4.5).
type ProgressConfig struct {
	// PollInterval is the configured poll interval, reported by the control
	// plane's /api/v1/progress endpoint. Default: 100µs. progress.Driver
	// does not read it: it polls continuously and sleeps 10-100µs after an
	// empty poll.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required,gt=0" yaml:"poll_interval"`
}

// VNIConfig holds the virtual network identifier range setting
// (spec.md §4.8).
type VNIConfig struct {
	// Max is the highest VNI value setting. Default: 65535 (the full 16-bit
	// range). It is loaded only: device discovery and QP setup do not read
	// it.
	Max uint16 `mapstructure:"max" yaml:"max"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Tunables, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return Default(), nil
	}

	var t Tunables
	if err := v.Unmarshal(&t, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&t)
	if err := Validate(&t); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &t, nil
}

// MustLoad loads configuration, producing a user-friendly error when the
// default location has nothing to load.
func MustLoad(configPath string) (*Tunables, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Run 'kfabricd init' to create one, or pass --config", GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	t, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return t, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(t *Tunables, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// InitConfig writes a default configuration file to the default location.
// Fails if the file already exists unless force is true.
func InitConfig(force bool) (string, error) {
	return GetDefaultConfigPath(), InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a default configuration file to path. Fails if
// the file already exists unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}
	return SaveConfig(Default(), path)
}

// Validate checks a loaded Tunables against its struct tags, using
// go-playground/validator for the field-level rules (range, oneof,
// required) captured in the `validate` tags above.
func Validate(t *Tunables) error {
	if err := validator.New().Struct(t); err != nil {
		return err
	}
	if t.Telemetry.Enabled && t.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry.enabled is true")
	}
	if t.ControlPlane.Enabled && t.ControlPlane.Addr == "" {
		return fmt.Errorf("controlplane.addr is required when controlplane.enabled is true")
	}
	return nil
}

// setupViper configures viper with environment variable and config file
// settings. Environment variables use the KFABRIC_ prefix, e.g.
// KFABRIC_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("KFABRIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings like "100us" or "30s" to time.Duration
// during viper unmarshaling.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, honoring XDG_CONFIG_HOME.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kfabric")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "kfabric")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
