package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const lockFileName = "rebuild.lock"

// Lock is an exclusive advisory lock over the .reel/ directory. Rebuilds
// take it so two processes cannot clear-and-repopulate the same database
// concurrently.
type Lock struct {
	file *os.File
}

// AcquireLock takes the exclusive rebuild lock, blocking until it is free.
// If overrideDir is non-empty, it is used instead of the default ~/.reel/ location.
func (m *Manager) AcquireLock(overrideDir string) (*Lock, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("locking rebuild lock: %w", err)
	}

	return &Lock{file: file}, nil
}

// Release unlocks and closes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("unlocking rebuild lock: %w", err)
	}
	return l.file.Close()
}
