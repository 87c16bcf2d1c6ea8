package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault_PopulatesDocumentedDefaults(t *testing.T) {
	tn := Default()

	require.Equal(t, 16, tn.Verbs.MaxSGE)
	require.Equal(t, 512, tn.Verbs.MaxInline)
	require.Equal(t, 1024, tn.CQ.DefaultCapacity)
	require.Equal(t, 256, tn.QP.DefaultDepth)
	require.Equal(t, 1024, tn.MRCache.Size)
	require.Equal(t, 8192, tn.MRCache.MaxRegions)
	require.Equal(t, 100*time.Microsecond, tn.Progress.PollInterval)
	require.Equal(t, uint16(65535), tn.VNI.Max)
	require.Equal(t, "INFO", tn.Logging.Level)
	require.Equal(t, "text", tn.Logging.Format)
	require.Equal(t, "stdout", tn.Logging.Output)
	require.Equal(t, 30*time.Second, tn.ShutdownTimeout)
}

func TestValidate_Default(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	tn := Default()
	tn.Logging.Level = "VERBOSE"
	require.Error(t, Validate(tn))
}

func TestValidate_RejectsZeroMaxSGE(t *testing.T) {
	tn := Default()
	tn.Verbs.MaxSGE = 0
	require.Error(t, Validate(tn))
}

func TestValidate_TelemetryRequiresEndpointWhenEnabled(t *testing.T) {
	tn := Default()
	tn.Telemetry.Enabled = true
	tn.Telemetry.Endpoint = ""
	require.Error(t, Validate(tn))
}

func TestValidate_ControlPlaneRequiresAddrWhenEnabled(t *testing.T) {
	tn := Default()
	tn.ControlPlane.Enabled = true
	tn.ControlPlane.Addr = ""
	require.Error(t, Validate(tn))
}

func TestLoad_NoFileFallsBackToDefaults(t *testing.T) {
	tn, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), tn)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := "verbs:\n  max_sge: 8\n  max_inline: 256\nlogging:\n  level: DEBUG\n  format: json\n  output: stderr\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0600))

	tn, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, tn.Verbs.MaxSGE)
	require.Equal(t, 256, tn.Verbs.MaxInline)
	require.Equal(t, "DEBUG", tn.Logging.Level)
	// Unspecified fields still receive their defaults.
	require.Equal(t, 1024, tn.CQ.DefaultCapacity)
}

func TestSaveConfig_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	tn := Default()
	tn.Verbs.MaxSGE = 4
	require.NoError(t, SaveConfig(tn, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, loaded.Verbs.MaxSGE)
}

func TestGetDefaultConfigPath_HonorsXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	require.Equal(t, filepath.Join(dir, "kfabric", "config.yaml"), GetDefaultConfigPath())
}
