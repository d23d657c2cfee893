// Package config handles configuration loading and validation for slate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete slate configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// X11 configuration for the server connection.
	X11 X11Config `toml:"x11" json:"x11" yaml:"x11"`

	// Pump configuration for the event loop.
	Pump PumpConfig `toml:"pump" json:"pump" yaml:"pump"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// X11Config holds server connection configuration.
type X11Config struct {
	// Display is the X display string. Empty means $DISPLAY.
	Display string `toml:"display" json:"display" yaml:"display"`
}

// PumpConfig holds event loop configuration.
type PumpConfig struct {
	// IntervalMs is the pump interval in milliseconds. The proximity and
	// ring timeouts fire with at most this much extra latency.
	IntervalMs int `toml:"interval_ms" json:"interval_ms" yaml:"interval_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled determines whether metrics are dumped at exit.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// DumpPath is the file the text exposition is written to. Empty means
	// stderr.
	DumpPath string `toml:"dump_path" json:"dump_path" yaml:"dump_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Pump: PumpConfig{
			IntervalMs: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "slate", "config.toml")
	}
	return "slate.toml"
}

// Load reads configuration from the specified path. A missing file yields
// the defaults. TOML, JSON and YAML are supported by extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides. Variables are
// prefixed with SLATE_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SLATE_DISPLAY"); v != "" {
		c.X11.Display = v
	}
	if v := os.Getenv("SLATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SLATE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SLATE_PUMP_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pump.IntervalMs = n
		}
	}
	if v := os.Getenv("SLATE_METRICS_PATH"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.DumpPath = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Pump.IntervalMs <= 0 {
		return fmt.Errorf("config: pump interval must be positive, got %d", c.Pump.IntervalMs)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}

// SaveConfig writes the configuration to path as TOML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
