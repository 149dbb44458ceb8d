//go:build unix

package flock_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/flock"
)

func TestAcquire_ExcludesSecondHolder(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "svc.lock")

	first, err := flock.Acquire(context.Background(), path, time.Second)
	require.NoError(t, err)

	_, err = flock.TryAcquire(path)
	require.ErrorIs(t, err, errors.ErrLockTimeout)

	_, err = flock.Acquire(context.Background(), path, 120*time.Millisecond)
	require.ErrorIs(t, err, errors.ErrLockTimeout)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "release is idempotent")

	second, err := flock.TryAcquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, second.Path())
	require.NoError(t, second.Release())
}

func TestAcquire_ContextCanceled(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "svc.lock")

	held, err := flock.Acquire(context.Background(), path, time.Second)
	require.NoError(t, err)
	defer func() { _ = held.Release() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = flock.Acquire(ctx, path, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRelease_NilLock(t *testing.T) {
	t.Parallel()
	var l *flock.Lock
	require.NoError(t, l.Release())
}
