package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)
	require.Equal(t, path, m.GetConfigPath())

	cfg := m.Get()
	require.Equal(t, 8080, cfg.ServerPort)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, BackendGPhoto2, cfg.Camera.Backend)
	require.Equal(t, "gphoto2", cfg.Camera.Command)
	require.Equal(t, 2, cfg.Camera.CaptureSizeClassChoice)
	require.Equal(t, 90, cfg.Preview.JPEGQuality)
	require.True(t, cfg.Overlay.Enabled)
	require.True(t, cfg.Overlay.Histogram)
	require.False(t, cfg.Window.Enabled)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestNewManagerReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
server_port: 9191
log_level: debug
camera:
  backend: synthetic
  synthetic_width: 320
preview:
  max_width: 800
`), 0o644)
	require.NoError(t, err)

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	require.Equal(t, 9191, cfg.ServerPort)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, BackendSynthetic, cfg.Camera.Backend)
	require.Equal(t, 320, cfg.Camera.SyntheticWidth)
	require.Equal(t, 424, cfg.Camera.SyntheticHeight)
	require.Equal(t, 800, cfg.Preview.MaxWidth)
}

func TestNewManagerRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte("camera:\n  backend: polaroid\n"), 0o644)
	require.NoError(t, err)

	_, err = NewManager(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "polaroid")
}

func TestSetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Set("server_port", 9090))

	reopened, err := NewManager(path)
	require.NoError(t, err)
	require.Equal(t, 9090, reopened.Get().ServerPort)
}

func TestSetRejectsInvalidValue(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	require.Error(t, m.Set("preview.jpeg_quality", 0))
	require.Equal(t, 90, m.Get().Preview.JPEGQuality)

	// the rejected value must not stick around and fail later writes
	require.NoError(t, m.Set("server_port", 9090))
	require.Equal(t, 9090, m.Get().ServerPort)
	require.NoError(t, m.Override("camera.backend", BackendSynthetic))
}

func TestOverrideDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Override("camera.backend", BackendSynthetic))
	require.Equal(t, BackendSynthetic, m.Get().Camera.Backend)

	reopened, err := NewManager(path)
	require.NoError(t, err)
	require.Equal(t, BackendGPhoto2, reopened.Get().Camera.Backend)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("FOCUSASSIST_SERVER_PORT", "7070")

	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, 7070, m.Get().ServerPort)
}

func TestGetReturnsCopy(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	cfg := m.Get()
	cfg.ServerPort = 1
	require.Equal(t, 8080, m.Get().ServerPort)
}

func TestBindFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("camera", "", "")

	// unchanged flags leave the file values alone
	require.NoError(t, m.BindFlag("server_port", flags.Lookup("port")))
	require.Equal(t, 8080, m.Get().ServerPort)

	require.NoError(t, flags.Parse([]string{"--port", "9999", "--camera", "synthetic"}))
	require.NoError(t, m.BindFlag("camera.backend", flags.Lookup("camera")))
	require.Equal(t, 9999, m.Get().ServerPort)
	require.Equal(t, BackendSynthetic, m.Get().Camera.Backend)

	require.Error(t, m.BindFlag("log_level", flags.Lookup("missing")))
}
