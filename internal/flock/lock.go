package flock

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/errors"
)

const lockFilePerm = 0o600

// Lock is a held exclusive lock on a file. The file stays open until Release.
type Lock struct {
	path string
	file *os.File
}

// Path returns the locked file path.
func (l *Lock) Path() string {
	return l.path
}

// File returns the open lock file so holders can write metadata into it.
func (l *Lock) File() *os.File {
	return l.file
}

// Acquire opens (creating if needed) the file at path and takes an exclusive
// lock on it, polling until timeout elapses or ctx is done. A timeout returns
// an error wrapping errors.ErrLockTimeout.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			_ = f.Close()
			return nil, err
		}

		if err := Exclusive(f.Fd()); err == nil {
			return &Lock{path: path, file: f}, nil
		}

		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s after %v: %w", path, timeout, errors.ErrLockTimeout)
		}

		timer := time.NewTimer(constants.LockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = f.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire takes the lock without waiting. It returns errors.ErrLockTimeout
// immediately if another holder has it.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := Exclusive(f.Fd()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s is held: %w", path, errors.ErrLockTimeout)
	}
	return &Lock{path: path, file: f}, nil
}

// Release unlocks and closes the file. It is safe to call on a nil Lock and
// more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = Unlock(l.file.Fd())
	err := l.file.Close()
	l.file = nil
	return err
}
