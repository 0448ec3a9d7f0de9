// Package lock keeps a single kpmd instance per lock path.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrLocked matches any failure caused by another holder of the lock.
var ErrLocked = errors.New("lock is held by another process")

// HeldError reports the holder's PID when the lock file names one.
type HeldError struct {
	Path string
	PID  int // 0 when the file did not contain a readable PID
}

func (e *HeldError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s: held by pid %d", e.Path, e.PID)
	}
	return e.Path + ": held by another process"
}

func (e *HeldError) Is(target error) bool { return target == ErrLocked }

// PIDLock is an flock(2) on a file that also records the holder's PID. The
// lock lasts while the descriptor is open, so it dies with the process.
type PIDLock struct {
	path string
	f    *os.File
}

// Acquire takes the lock at path without blocking and records this
// process's PID in it.
func Acquire(path string) (*PIDLock, error) {
	if path == "" {
		return nil, errors.New("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	switch err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); {
	case err == nil:
	case errors.Is(err, unix.EWOULDBLOCK):
		_ = f.Close()
		pid, _ := Owner(path)
		return nil, &HeldError{Path: path, PID: pid}
	default:
		_ = f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	l := &PIDLock{path: path, f: f}
	if err := l.stamp(); err != nil {
		_ = l.Release()
		return nil, err
	}
	return l, nil
}

// stamp replaces the file contents with our PID.
func (l *PIDLock) stamp() error {
	pid := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate %s: %w", l.path, err)
	}
	if _, err := l.f.WriteAt(pid, 0); err != nil {
		return fmt.Errorf("write pid to %s: %w", l.path, err)
	}
	return l.f.Sync()
}

func (l *PIDLock) Path() string { return l.path }

// Release drops the lock. The file is left in place; unlinking it would let
// a second process lock a fresh inode while a third still waits on the old
// one. Releasing twice is harmless.
func (l *PIDLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return f.Close()
}

// Owner returns the PID written in the lock file at path. It does not check
// whether the lock is still held.
func Owner(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("no pid in %s", path)
	}
	return pid, nil
}
