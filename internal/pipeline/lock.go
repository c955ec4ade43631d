package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"chronicle/internal/config"
)

// StageLock enforces the single-worker-per-stage deployment assumption on a
// host via a lock file. The coordinator itself has no claim step, so running
// two workers for the same stage risks duplicate processing; the lock makes
// that an explicit startup failure instead.
type StageLock struct {
	path string
	lock *flock.Flock
}

// NewStageLock builds a lock file for one stage under the data directory.
func NewStageLock(cfg *config.Config, stage string) *StageLock {
	path := filepath.Join(cfg.Paths.DataDir, fmt.Sprintf("worker-%s.lock", stage))
	return &StageLock{path: path, lock: flock.New(path)}
}

// Acquire takes the lock, failing immediately when another worker for the
// same stage holds it.
func (l *StageLock) Acquire() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire stage lock: %w", err)
	}
	if !ok {
		return errors.New("another worker for this stage is already running")
	}
	return nil
}

// Release drops the lock.
func (l *StageLock) Release() error {
	return l.lock.Unlock()
}

// Path returns the lock file location.
func (l *StageLock) Path() string {
	return l.path
}
