// Package lock keeps two mirror-sync processes from reconciling the same
// replica at the same time.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("replica is locked by another mirror-sync process")

type ReplicaLock struct {
	flock *flock.Flock
}

// New returns a lock for replica whose lock file lives in dir, never inside
// the replica itself. An empty dir means os.TempDir().
func New(dir, replica string) (*ReplicaLock, error) {
	abs, err := filepath.Abs(replica)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", replica, err)
	}
	if dir == "" {
		dir = os.TempDir()
	}
	sum := sha256.Sum256([]byte(abs))
	name := "mirror-sync-" + hex.EncodeToString(sum[:])[:16] + ".lock"
	return &ReplicaLock{flock: flock.New(filepath.Join(dir, name))}, nil
}

func (l *ReplicaLock) Path() string {
	return l.flock.Path()
}

// Lock acquires the lock without waiting. ErrLocked means another process
// holds it.
func (l *ReplicaLock) Lock() error {
	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock replica: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

// Unlock releases the lock. The lock file is never removed; every process
// must contend on the same inode.
func (l *ReplicaLock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock replica: %w", err)
	}
	return nil
}
