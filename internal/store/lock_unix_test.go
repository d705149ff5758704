//go:build unix

package store

import (
	"errors"
	"testing"
)

func TestLockDirIsExclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := LockDir(dir)
	if err != nil {
		t.Fatalf("LockDir failed: %v", err)
	}

	if _, err := LockDir(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked for second lock, got %v", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Errorf("second Unlock should be a no-op, got %v", err)
	}

	again, err := LockDir(dir)
	if err != nil {
		t.Fatalf("LockDir after unlock failed: %v", err)
	}
	_ = again.Unlock()
}
