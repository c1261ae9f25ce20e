// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Config holds the server configuration. The engine core needs nothing
// here; everything below shapes the HTTP shell and the optional snapshot
// export destination.
type Config struct {
	Port                string
	LogLevel            string
	SnapshotDatabaseURL string
	SnapshotRedisURL    string
}

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                os.Getenv("PORT"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		SnapshotDatabaseURL: os.Getenv("SNAPSHOT_DATABASE_URL"),
		SnapshotRedisURL:    os.Getenv("SNAPSHOT_REDIS_URL"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LOG_LEVEL %q", c.LogLevel)
	}
	if c.SnapshotDatabaseURL != "" && c.SnapshotRedisURL != "" {
		return errors.New("config: set at most one of SNAPSHOT_DATABASE_URL and SNAPSHOT_REDIS_URL")
	}
	return nil
}

// SlogLevel maps LogLevel onto the slog level scale.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
