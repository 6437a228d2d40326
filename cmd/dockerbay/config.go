package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all CLI configuration.
type Config struct {
	Docker DockerConfig `mapstructure:"docker"`
	Log    LogConfig    `mapstructure:"log"`
	Wait   WaitConfig   `mapstructure:"wait"`
	Probe  ProbeConfig  `mapstructure:"probe"`
	Run    RunConfig    `mapstructure:"run"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	// Host overrides DOCKER_HOST when set.
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WaitConfig holds readiness polling configuration.
type WaitConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ProbeConfig holds URL readiness probe configuration.
type ProbeConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// RunConfig holds run lifecycle configuration.
type RunConfig struct {
	// CleanupPrevious removes leftovers of an earlier run with the same id
	// before bringing a run up.
	CleanupPrevious bool `mapstructure:"cleanup_previous"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("wait.poll_interval", "2s")
	v.SetDefault("probe.timeout", "5s")
	v.SetDefault("run.cleanup_previous", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// A missing file falls back to defaults; a broken one does not.
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("DOCKERBAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Wait.PollInterval <= 0 {
		return nil, fmt.Errorf("wait.poll_interval must be positive, got %s", cfg.Wait.PollInterval)
	}
	if cfg.Probe.Timeout <= 0 {
		return nil, fmt.Errorf("probe.timeout must be positive, got %s", cfg.Probe.Timeout)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format that
// writes to w.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
