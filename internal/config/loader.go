package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Load reads the engine configuration from DE_-prefixed environment
// variables, validates it, and makes sure the download, temp, and
// state-file directories exist before anything is wired up.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("DE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := cfg.createDirs(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &cfg, nil
}

// createDirs prepares the directories the engine writes into: completed
// artifacts, in-flight temp files, and the persisted task registry.
func (c *Config) createDirs() error {
	dirs := []string{
		c.DownloadDir,
		c.TempDir,
		filepath.Dir(c.StateFile),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("directory created or verified", "path", dir)
	}
	return nil
}

// SetupLogger configures the global slog logger. The format follows
// LogFormat when set; otherwise development environments get the text
// handler and everything else logs JSON.
func SetupLogger(cfg *Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
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
	if cfg.LogFormat == "text" || (cfg.LogFormat == "" && cfg.Environment == "development") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", "download-engine")
	slog.SetDefault(logger)
}
