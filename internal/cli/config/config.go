// Package config loads traceline's CLI configuration. Values layer in
// precedence order: flags over TRACELINE_ environment variables over the
// config file over built-in defaults.
package config

import (
	"context"
	"log/slog"
)

// Defaults.
const (
	DefaultStateFile = "traceline.db"
	DefaultOutput    = "auto"
	DefaultPort      = 8765
)

// Config holds every setting the commands consume.
type Config struct {
	// StatePath is the SQLite history database. Empty disables
	// persistence.
	StatePath string `koanf:"state_path"`

	// CatalogPath is a plan document whose catalog section seeds view
	// and cache lookups for every extraction.
	CatalogPath string `koanf:"catalog"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	// Strict turns operators without a propagation rule into errors
	// instead of falling back to conservative lineage.
	Strict bool `koanf:"strict"`

	Server ServerConfig `koanf:"server"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
}

type configKey struct{}
type loggerKey struct{}

// IntoContext stores the loaded config on the command context.
func IntoContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext returns the loaded config, or a default one when loading
// never ran (help, completion).
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey{}).(*Config); ok {
		return cfg
	}
	return &Config{
		StatePath:    DefaultStateFile,
		OutputFormat: DefaultOutput,
		Server:       ServerConfig{Port: DefaultPort},
	}
}

// WithLogger stores the logger on the command context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context, falling back
// to a discard logger.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
