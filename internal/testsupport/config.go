package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/scenarr/scenarr/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted in a per-test temp directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(base, "scenarr.db")
	cfg.Library.Path = filepath.Join(base, "library")
	cfg.Client.SavePath = filepath.Join(base, "downloads")
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Monitor.RegisterTimeoutSeconds = 1
	cfg.Monitor.RegisterPollIntervalMS = 50

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithLibraryOperation sets how completed payloads are handed off.
func WithLibraryOperation(op string) ConfigOption {
	return func(c *config.Config) {
		c.Library.Operation = op
	}
}

// WithRetryCeiling sets the submission attempt ceiling.
func WithRetryCeiling(n int) ConfigOption {
	return func(c *config.Config) {
		c.Retry.MaxAttempts = n
	}
}
