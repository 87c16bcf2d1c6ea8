package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hpc-fabrics/kfabric-verbs/internal/logger"
	"github.com/hpc-fabrics/kfabric-verbs/internal/telemetry"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/completion"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/config"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/controlplane"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/device"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric/fabricsim"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/metrics"
	_ "github.com/hpc-fabrics/kfabric-verbs/pkg/metrics/prometheus"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/progress"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/registry"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/status"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the kfabricd daemon",
	Long: `Start kfabricd: discover kfabric devices, register them, start one
progress driver per device, and serve the control-plane and metrics
endpoints if configured.

By default, the daemon runs in the background. Use --foreground to run in
the foreground for debugging or when managed by a process supervisor.

Examples:
  # Start in background (default)
  kfabricd start

  # Start in foreground
  kfabricd start --foreground

  # Start with a custom config file
  kfabricd start --config /etc/kfabric/config.yaml`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/kfabric/kfabricd.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/kfabric/kfabricd.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "kfabricd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "kfabricd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("kfabricd starting", "version", Version, "config_source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	metrics.SetEnabled(cfg.Metrics.Enabled)

	provider := fabricsim.New()
	for _, name := range cfg.Device.SimulatedNodeNames {
		provider.AddInfo(&fabric.Info{
			ProviderName:  cfg.Device.ProviderName,
			NodeName:      name,
			DefaultVNI:    0,
			HasDefaultVNI: false,
		})
	}

	discoverCtx, discoverCancel := context.WithTimeout(ctx, cfg.Device.DiscoverTimeout)
	devices, err := device.Discover(discoverCtx, provider, device.DiscoverConfig{
		ProviderName:    cfg.Device.ProviderName,
		MRCacheCapacity: cfg.MRCache.Size,
		MaxSGE:          cfg.Verbs.MaxSGE,
		KeyMetrics:      metrics.NewKeymapMetrics(),
		CacheMetrics:    metrics.NewMRCacheMetrics(),
	})
	discoverCancel()
	if err != nil {
		return fmt.Errorf("device discovery failed: %w", err)
	}
	logger.Info("device discovery complete", "count", len(devices))

	reg := registry.NewRegistry()
	if err := reg.RegisterAll(devices); err != nil {
		return fmt.Errorf("failed to register discovered devices: %w", err)
	}

	drivers, drainDone := startProgressDrivers(reg, cfg)
	defer func() {
		for _, d := range drivers {
			d.Stop(5 * time.Second)
		}
		<-drainDone
	}()

	var cpServer *controlplane.Server
	if cfg.ControlPlane.Enabled {
		cpServer = controlplane.New(reg, cfg)
		go func() {
			if err := cpServer.Start(ctx); err != nil {
				logger.Error("controlplane server error", "error", err)
			}
		}()
		logger.Info("controlplane server configured", "addr", cfg.ControlPlane.Addr)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			logger.Info("metrics server listening", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("kfabricd is running. Press Ctrl+C to stop.")
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received, initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if cpServer != nil {
		if err := cpServer.Stop(shutdownCtx); err != nil {
			logger.Error("controlplane server shutdown error", "error", err)
		}
	}
	if err := reg.CloseAll(); err != nil {
		logger.Error("device teardown error", "error", err)
	}

	logger.Info("kfabricd stopped gracefully")
	return nil
}

// startProgressDrivers starts one progress.Driver per registered device,
// each over a freshly created completion queue (spec.md §4.5: "Starts one
// driver per device"), pinning each to a CPU chosen round-robin. Every
// driver's completion channel, which the driver closes on exit, is drained by a
// background goroutine, since there is no live application posting work
// requests against this harness's QPs to consume them itself; the returned
// done channel closes once every drain goroutine has exited.
func startProgressDrivers(reg *registry.Registry, cfg *config.Tunables) ([]*progress.Driver, <-chan struct{}) {
	devices := reg.Devices()
	drivers := make([]*progress.Driver, 0, len(devices))
	done := make(chan struct{})

	var pending int
	results := make(chan struct{}, len(devices))

	for _, d := range devices {
		cq, code := d.CreateCQ(cfg.CQ.DefaultCapacity)
		if code != status.Success {
			logger.Warn("failed to create device completion queue, skipping progress driver", "device", d.Name, "status", code)
			continue
		}

		out := make(chan completion.WorkCompletion, cfg.CQ.DefaultCapacity)
		drv := progress.NewDriver(d.Name, d.FabricProvider(), cq.Native(), out, progress.Config{
			CPU:     len(drivers) % runtime.NumCPU(),
			Metrics: metrics.NewProgressMetrics(),
		})
		drv.Start()
		drivers = append(drivers, drv)

		pending++
		go func(name string, out chan completion.WorkCompletion) {
			for range out {
				logger.Debug("completion drained", "device", name)
			}
			results <- struct{}{}
		}(d.Name, out)
	}

	go func() {
		for i := 0; i < pending; i++ {
			<-results
		}
		close(done)
	}()

	logger.Info("progress drivers started", "count", len(drivers))
	return drivers, done
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the daemon as a detached background process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("kfabricd is already running (PID %d)\nUse 'kfabricd stop' to stop the running instance", pid)
					}
				}
			}
		}
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	cmd := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFileHandle.Close()

	fmt.Printf("kfabricd started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'kfabricd stop' to stop the daemon")
	fmt.Println("Use 'kfabricd status' to check daemon status")

	return nil
}
