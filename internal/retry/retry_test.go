package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/testutil"
)

func fast(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var notified []int

	v, err := Do(context.Background(), fast(3), Always, func(_ error, attempt int, _ time.Duration) {
		notified = append(notified, attempt)
	}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", testutil.ErrMockNetwork
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast(4), Always, nil, func(context.Context) (int, error) {
		calls++
		return 0, testutil.ErrMockNetwork
	})
	require.ErrorIs(t, err, testutil.ErrMockNetwork)
	assert.Equal(t, 4, calls)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast(5), Infrastructure, nil, func(context.Context) (int, error) {
		calls++
		return 0, cerrors.ErrValidation
	})
	require.ErrorIs(t, err, cerrors.ErrValidation)
	assert.Equal(t, 1, calls)
}

func TestDo_InfrastructureIsRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast(2), Infrastructure, nil, func(context.Context) (int, error) {
		calls++
		return 0, cerrors.Mark(testutil.ErrMockNetwork, cerrors.ErrInfrastructure)
	})
	require.ErrorIs(t, err, cerrors.ErrInfrastructure)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Policy{MaxAttempts: 10, InitialInterval: time.Hour}, Always, nil, func(context.Context) (int, error) {
		return 0, testutil.ErrMockNetwork
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, testutil.ErrMockNetwork))
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{}, Always, nil, func(context.Context) (int, error) {
		calls++
		return 0, testutil.ErrMockNetwork
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
