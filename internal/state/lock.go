package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("state directory is locked by another run")

// Lock is an exclusive advisory lock on the state directory. It excludes other
// processes through flock and other goroutines sharing the same Lock through mu.
type Lock struct {
	mu sync.Mutex
	fl *flock.Flock
}

func NewLock(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// TryLock fails fast with ErrLocked instead of waiting for the holder.
func (l *Lock) TryLock() error {
	// flock.TryLock reports success again when this instance already holds the lock
	if !l.mu.TryLock() {
		return fmt.Errorf("%w: %s", ErrLocked, l.fl.Path())
	}
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := l.fl.TryLock()
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("acquire lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLocked, l.fl.Path())
	}
	return nil
}

func (l *Lock) Unlock() error {
	defer l.mu.Unlock()
	return l.fl.Unlock()
}
