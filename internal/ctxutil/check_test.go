package ctxutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/ctxutil"
)

func TestCanceled(t *testing.T) {
	t.Parallel()

	require.NoError(t, ctxutil.Canceled(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ctxutil.Canceled(ctx), context.Canceled)
}

type ctxKey struct{}

func TestDetached_SurvivesParentCancel(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	detached, stop := ctxutil.Detached(parent, time.Second)
	defer stop()

	cancel()
	require.NoError(t, detached.Err())
	assert.Equal(t, "v", detached.Value(ctxKey{}))

	_, hasDeadline := detached.Deadline()
	assert.True(t, hasDeadline)
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, ctxutil.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, ctxutil.Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
