package testsupport

import (
	"path/filepath"
	"testing"

	"chronicle/internal/config"
)

// NewConfig produces a config seeded with unique temp directories per test
// and short worker intervals so waiter tests stay fast.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Workflow.PollInterval = 1
	cfg.Workflow.MaxWait = 2
	cfg.Workflow.ErrorRetryInterval = 1
	return &cfg
}
