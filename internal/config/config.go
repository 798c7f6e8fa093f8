package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/FocusAssist/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Camera backend names
const (
	BackendGPhoto2   = "gphoto2"
	BackendSynthetic = "synthetic"
	BackendWebcam    = "webcam"
)

// CameraConfig selects and tunes the camera backend
type CameraConfig struct {
	Backend   string `json:"backend" yaml:"backend" mapstructure:"backend"`
	Command   string `json:"command" yaml:"command" mapstructure:"command"`       // gphoto2 command prefix, shell quoted
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms" mapstructure:"timeout_ms"` // per camera call

	// Choice index written to "capturesizeclass" on init. Negative disables.
	CaptureSizeClassChoice int `json:"capture_size_class_choice" yaml:"capture_size_class_choice" mapstructure:"capture_size_class_choice"`

	Device int `json:"device" yaml:"device" mapstructure:"device"` // webcam index

	SyntheticWidth       int    `json:"synthetic_width" yaml:"synthetic_width" mapstructure:"synthetic_width"`
	SyntheticHeight      int    `json:"synthetic_height" yaml:"synthetic_height" mapstructure:"synthetic_height"`
	SyntheticImageFormat string `json:"synthetic_image_format" yaml:"synthetic_image_format" mapstructure:"synthetic_image_format"`
}

// PreviewConfig controls the MJPEG preview stream
type PreviewConfig struct {
	MaxWidth    int `json:"max_width" yaml:"max_width" mapstructure:"max_width"` // 0 streams at full resolution
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// WindowConfig controls the native X11 preview window
type WindowConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Width   int  `json:"width" yaml:"width" mapstructure:"width"`
	Height  int  `json:"height" yaml:"height" mapstructure:"height"`
}

// OverlayConfig controls the readout drawn onto streamed frames
type OverlayConfig struct {
	Enabled   bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Histogram bool `json:"histogram" yaml:"histogram" mapstructure:"histogram"`
}

// Config represents the application configuration
type Config struct {
	ServerPort int           `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	Camera     CameraConfig  `json:"camera" yaml:"camera" mapstructure:"camera"`
	Preview    PreviewConfig `json:"preview" yaml:"preview" mapstructure:"preview"`
	Window     WindowConfig  `json:"window" yaml:"window" mapstructure:"window"`
	Overlay    OverlayConfig `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch c.Camera.Backend {
	case BackendGPhoto2, BackendSynthetic, BackendWebcam:
	default:
		return fmt.Errorf("unknown camera backend: %q (use %s, %s or %s)",
			c.Camera.Backend, BackendGPhoto2, BackendSynthetic, BackendWebcam)
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.ServerPort)
	}
	if c.Preview.JPEGQuality < 1 || c.Preview.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (1-100)", c.Preview.JPEGQuality)
	}
	if c.Preview.MaxWidth < 0 {
		return fmt.Errorf("invalid preview max width: %d", c.Preview.MaxWidth)
	}
	if c.Camera.TimeoutMs <= 0 {
		return fmt.Errorf("invalid camera timeout: %dms", c.Camera.TimeoutMs)
	}
	return nil
}

// Manager handles configuration
type Manager struct {
	v          *viper.Viper
	configPath string
	config     *Config
	mu         sync.RWMutex
	listeners  []func(*Config)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("camera.backend", BackendGPhoto2)
	v.SetDefault("camera.command", "gphoto2")
	v.SetDefault("camera.timeout_ms", 10000)
	v.SetDefault("camera.capture_size_class_choice", 2)
	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.synthetic_width", 640)
	v.SetDefault("camera.synthetic_height", 424)
	v.SetDefault("camera.synthetic_image_format", "Large Fine JPEG")
	v.SetDefault("preview.max_width", 0)
	v.SetDefault("preview.jpeg_quality", 90)
	v.SetDefault("window.enabled", false)
	v.SetDefault("window.width", 1024)
	v.SetDefault("window.height", 600)
	v.SetDefault("overlay.enabled", true)
	v.SetDefault("overlay.histogram", true)
}

// DefaultConfigPath returns ~/.config/focusassist/config.yaml
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "focusassist", "config.yaml"), nil
}

// NewManager creates a new configuration manager. A missing config file is
// created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FOCUSASSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{
		v:          v,
		configPath: path,
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		if err := m.reload(); err != nil {
			return nil, err
		}
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return m, nil
	}

	if err := m.reload(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", path).
		Str("camera", m.config.Camera.Backend).
		Msg("Config loaded")

	return m, nil
}

// reload decodes viper state into a fresh Config
func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// GetViper exposes the underlying viper instance for key based access
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// Set assigns a key and persists the result
func (m *Manager) Set(key string, value interface{}) error {
	if err := m.assign(key, value); err != nil {
		return err
	}
	return m.Save()
}

// Override assigns a key for this process only (command-line flags)
func (m *Manager) Override(key string, value interface{}) error {
	return m.assign(key, value)
}

// assign sets key and reloads, putting the previous value back if the
// result does not validate
func (m *Manager) assign(key string, value interface{}) error {
	prev := m.v.Get(key)
	m.v.Set(key, value)
	if err := m.reload(); err != nil {
		m.v.Set(key, prev)
		if rerr := m.reload(); rerr != nil {
			return fmt.Errorf("%w (restoring %s: %v)", err, key, rerr)
		}
		return err
	}
	return nil
}

// BindFlag lets a command-line flag override key when the flag is given
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	if err := m.v.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
	}
	return m.reload()
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// OnChange registers a callback run after the file changes on disk
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Watch starts watching the config file for edits
func (m *Manager) Watch() {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		log := logger.WithComponent("config")
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := m.reload(); err != nil {
			log.Warn().Err(err).Str("path", e.Name).Msg("Ignoring invalid config change")
			return
		}
		log.Info().Str("path", e.Name).Msg("Config reloaded")

		cfg := m.Get()
		m.mu.RLock()
		listeners := append([]func(*Config){}, m.listeners...)
		m.mu.RUnlock()
		for _, fn := range listeners {
			fn(cfg)
		}
	})
	m.v.WatchConfig()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
