// Package config holds pubctl's own settings: where logs go, which
// telemetry exporter to use and the session tunables. Project-specific
// settings live in the project descriptor instead.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides (PUBCTL_LOG_DIR, ...).
const EnvPrefix = "PUBCTL"

// Telemetry exporters
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config is the resolved CLI configuration
type Config struct {
	Debug     bool            `mapstructure:"debug"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Session   SessionConfig   `mapstructure:"session"`
	UI        UIConfig        `mapstructure:"ui"`
}

// LogConfig controls the log file
type LogConfig struct {
	Dir  string `mapstructure:"dir"`
	JSON bool   `mapstructure:"json"`
}

// TelemetryConfig selects the trace exporter
type TelemetryConfig struct {
	Exporter string `mapstructure:"exporter"`
	File     string `mapstructure:"file"`
	Endpoint string `mapstructure:"endpoint"`
}

// MetricsConfig controls the metrics textfile. Empty Textfile disables export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// SessionConfig tunes the worker session
type SessionConfig struct {
	// HandshakeTimeout bounds the wait for a worker session. Zero waits
	// until the worker connects, exits or the command is cancelled.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// UIConfig tunes the terminal output
type UIConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// DefaultLogDir returns ~/.pubctl/logs, or a temp directory when the home
// directory is unknown.
func DefaultLogDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".pubctl", "logs")
	}
	return filepath.Join(os.TempDir(), "pubctl-logs")
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log.dir", DefaultLogDir())
	v.SetDefault("log.json", false)
	v.SetDefault("telemetry.exporter", ExporterNone)
	v.SetDefault("telemetry.file", "")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("session.handshake_timeout", time.Duration(0))
	v.SetDefault("ui.refresh_interval", 100*time.Millisecond)
}

// New returns a viper instance with defaults, env overrides and the config
// file search path set up. configFile overrides the search when non-empty.
func New(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pubctl")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pubctl"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file if present and decodes v into a Config.
// A missing config file is not an error; an explicitly named one is.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	switch c.Telemetry.Exporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("unknown telemetry.exporter %q (want %s, %s or %s)",
			c.Telemetry.Exporter, ExporterNone, ExporterStdout, ExporterOTLP)
	}
	if c.Session.HandshakeTimeout < 0 {
		return fmt.Errorf("session.handshake_timeout must not be negative")
	}
	if c.UI.RefreshInterval < 0 {
		return fmt.Errorf("ui.refresh_interval must not be negative")
	}
	return nil
}
