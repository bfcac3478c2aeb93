package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileLock is an advisory lock on a local file. The OS drops it when the
// process dies, so a crashed leader never blocks the next one.
type FileLock struct {
	mu sync.Mutex
	fl *flock.Flock
}

func NewFileLock(path string) *FileLock {
	return &FileLock{fl: flock.New(path)}
}

// Path is the lock file location
func (l *FileLock) Path() string {
	return l.fl.Path()
}

func (l *FileLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fl.Locked() {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", l.fl.Path(), err)
	}
	return ok, nil
}

func (l *FileLock) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fl.Locked() {
		return ErrLockLost
	}
	return nil
}

func (l *FileLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fl.Locked() {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.fl.Path(), err)
	}
	return nil
}
