package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofrs/flock"
	"github.com/mitchellh/go-homedir"
)

const lockFileSuffix = ".lock"

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// RunLock is a file lock guarding one merchant's runs across processes.
type RunLock struct {
	lock *flock.Flock
	path string
}

// NewRunLock returns the lock for merchant under dir. dir is created if needed.
func NewRunLock(dir, merchant string) (*RunLock, error) {
	if merchant == "" {
		return nil, errors.New("merchant is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, unsafeName.ReplaceAllString(merchant, "_")+lockFileSuffix)
	return &RunLock{lock: flock.New(path), path: path}, nil
}

// TryLock acquires the lock without waiting. It returns ErrLocked when the lock is taken.
func (l *RunLock) TryLock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("%s: %w", l.path, ErrLocked)
	}
	return nil
}

// Unlock releases the lock.
func (l *RunLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

func (l *RunLock) Path() string { return l.path }

// HeldLocks returns the merchants whose run lock is currently held by someone else.
func HeldLocks(dir string, merchants []string) ([]string, error) {
	var held []string
	for _, m := range merchants {
		l, err := NewRunLock(dir, m)
		if err != nil {
			return nil, err
		}
		err = l.TryLock()
		if errors.Is(err, ErrLocked) {
			held = append(held, m)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := l.Unlock(); err != nil {
			return nil, err
		}
	}
	return held, nil
}

// GetAbsDBPath resolves the database path, defaulting to ~/.config/kashisync/kashisync.sqlite.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "kashisync", "kashisync.sqlite"), nil
	}
	expanded, err := homedir.Expand(dbPath)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// LockDir returns the directory run locks live in, next to the database.
func LockDir(dbPath string) (string, error) {
	abs, err := GetAbsDBPath(dbPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(abs), "locks"), nil
}
