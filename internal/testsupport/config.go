// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"webmill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InputsDir = filepath.Join(base, "inputs")
	cfg.Paths.ResultsDir = filepath.Join(base, "results")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Server.Bind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithProgressStrategy overrides the progress reporting strategy.
func WithProgressStrategy(strategy string) ConfigOption {
	return func(c *config.Config) {
		c.Progress.Strategy = strategy
	}
}

// WithQuality overrides the default encode quality.
func WithQuality(quality int) ConfigOption {
	return func(c *config.Config) {
		c.Encoding.Quality = quality
	}
}
