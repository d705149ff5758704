package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned by LockDir when another process holds the lock.
var ErrLocked = errors.New("data directory is locked by another process")

// LockFileName is created inside a locked data directory.
const LockFileName = ".lock"

// DirLock is an advisory lock on a data directory. Only one process may own
// the documents in a directory at a time.
type DirLock struct {
	file *os.File
	path string
}

// LockDir takes the lock for dir, creating the directory if needed. It does
// not wait: a held lock yields ErrLocked.
func LockDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return &DirLock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}

// Unlock releases the lock. It is safe to call more than once.
func (l *DirLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
