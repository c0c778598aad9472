// Package config loads the scorelink configuration file and builds the
// components' options and logger from it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/scorelink/internal/connection"
	"github.com/srg/scorelink/internal/discovery"
)

const appName = "scorelink"

// Radio backends
const (
	BackendBlueZ = "bluez"
	BackendGoBLE = "goble"
)

// Config holds application configuration
type Config struct {
	LogLevel   string           `yaml:"log_level" default:"silent"`
	Radio      RadioConfig      `yaml:"radio"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Connection ConnectionConfig `yaml:"connection"`
	Store      StoreConfig      `yaml:"store"`
}

type RadioConfig struct {
	Backend       string `yaml:"backend" default:"bluez"`
	Adapter       string `yaml:"adapter" default:"hci0"`
	RFCOMMChannel uint8  `yaml:"rfcomm_channel" default:"1"`
}

type DiscoveryConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"12s"`
	Allow   []string      `yaml:"allow,omitempty"`
	Block   []string      `yaml:"block,omitempty"`
}

type ConnectionConfig struct {
	ReadBuffer  int           `yaml:"read_buffer" default:"1024"`
	StopTimeout time.Duration `yaml:"stop_timeout" default:"2s"`
}

type StoreConfig struct {
	// Path of the SQLite database; empty means DefaultDBPath.
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads path and fills unset fields with defaults. A missing file is
// not an error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	defaults.SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Radio.Backend {
	case BackendBlueZ, BackendGoBLE:
	default:
		return fmt.Errorf("unknown radio backend %q (must be %s or %s)", c.Radio.Backend, BackendBlueZ, BackendGoBLE)
	}
	if c.Radio.RFCOMMChannel < 1 || c.Radio.RFCOMMChannel > 30 {
		return fmt.Errorf("rfcomm_channel %d out of range 1-30", c.Radio.RFCOMMChannel)
	}
	if c.Discovery.Timeout < 0 {
		return fmt.Errorf("discovery timeout must not be negative")
	}
	if c.Connection.ReadBuffer < connection.DefaultReadBuffer {
		return fmt.Errorf("read_buffer must be at least %d bytes", connection.DefaultReadBuffer)
	}
	return nil
}

// ParseLevel converts a log level name. "silent" (or "") disables logging
// below panic.
func ParseLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "silent":
		return logrus.PanicLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// DiscoveryOptions maps the discovery section to engine options.
func (c *Config) DiscoveryOptions() *discovery.Options {
	opts := discovery.DefaultOptions()
	if c.Discovery.Timeout > 0 {
		opts.Timeout = c.Discovery.Timeout
	}
	opts.AllowList = c.Discovery.Allow
	opts.BlockList = c.Discovery.Block
	return opts
}

// ConnectionOptions maps the connection section to manager options.
func (c *Config) ConnectionOptions() *connection.Options {
	opts := connection.DefaultOptions()
	opts.ReadBuffer = c.Connection.ReadBuffer
	opts.StopTimeout = c.Connection.StopTimeout
	return opts
}

// DBPath returns the configured database path or the default one.
func (c *Config) DBPath() (string, error) {
	if c.Store.Path != "" {
		return expandHome(c.Store.Path)
	}
	return DefaultDBPath()
}

// DefaultConfigPath returns ~/.config/scorelink/config.yaml, honouring
// XDG_CONFIG_HOME.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName, "config.yaml"), nil
}

// DefaultDBPath returns ~/.local/share/scorelink/devices.db, honouring
// XDG_DATA_HOME.
func DefaultDBPath() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName, "devices.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName, "devices.db"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
