package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/constants"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/retry"
	"github.com/mrz1836/cutover/internal/testutil"
)

func request(duration, interval time.Duration) SampleRequest {
	return SampleRequest{
		ServiceID:  "api",
		Env:        constants.EnvGreen,
		Duration:   duration,
		Interval:   interval,
		Thresholds: defaultThresholds,
	}
}

func TestMonitor_SamplesForDwell(t *testing.T) {
	p := NewStaticProvider().Script(constants.EnvGreen, Aggregate{ErrorRate: 0.2, P95LatencyMs: 150})
	m := NewMonitor(p, time.Minute, zerolog.Nop())

	got, err := m.Sample(context.Background(), request(110*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)
	// One immediate sample plus roughly one per interval.
	assert.GreaterOrEqual(t, len(got), 3)
	assert.LessOrEqual(t, len(got), 7)
	for _, s := range got {
		assert.False(t, s.Breached)
	}

	queries := p.Queries()
	require.NotEmpty(t, queries)
	assert.Equal(t, "api", queries[0].ServiceID)
	assert.Equal(t, constants.EnvGreen, queries[0].Env)
	assert.Equal(t, time.Minute, queries[0].Window)
}

func TestMonitor_BreachStopsImmediately(t *testing.T) {
	p := NewStaticProvider().Script(constants.EnvGreen,
		Aggregate{ErrorRate: 0.1, P95LatencyMs: 100},
		Aggregate{ErrorRate: 2.5, P95LatencyMs: 100},
		Aggregate{ErrorRate: 0.1, P95LatencyMs: 100},
	)
	m := NewMonitor(p, time.Minute, zerolog.Nop())

	start := time.Now()
	got, err := m.Sample(context.Background(), request(10*time.Second, 10*time.Millisecond))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second, "sampling must not wait out the dwell after a breach")
	require.Len(t, got, 2)
	assert.True(t, got[1].Breached)
	assert.Equal(t, constants.VerdictFail, Evaluate(got, defaultThresholds, Policy{}))
}

func TestMonitor_ConsecutivePolicy(t *testing.T) {
	p := NewStaticProvider().Script(constants.EnvGreen,
		Aggregate{ErrorRate: 2.0},
		Aggregate{ErrorRate: 0.1},
		Aggregate{ErrorRate: 2.0},
		Aggregate{ErrorRate: 2.0},
		Aggregate{ErrorRate: 0.1},
	)
	m := NewMonitor(p, time.Minute, zerolog.Nop())

	req := request(10*time.Second, 5*time.Millisecond)
	req.Policy = Policy{ConsecutiveBreaches: 2}
	got, err := m.Sample(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, constants.VerdictFail, Evaluate(got, req.Thresholds, req.Policy))
}

func TestMonitor_QueryErrorEndsRun(t *testing.T) {
	p := NewStaticProvider()
	p.FailNext(cerrors.Mark(testutil.ErrMockMetricsUnavailable, cerrors.ErrInfrastructure))
	m := NewMonitor(p, time.Minute, zerolog.Nop())

	got, err := m.Sample(context.Background(), request(time.Second, 10*time.Millisecond))
	require.ErrorIs(t, err, cerrors.ErrInfrastructure)
	assert.Empty(t, got)
}

func TestMonitor_NoDataIsSkipped(t *testing.T) {
	p := NewStaticProvider()
	p.FailNext(cerrors.ErrNoMetricsData)
	m := NewMonitor(p, time.Minute, zerolog.Nop())

	got, err := m.Sample(context.Background(), request(50*time.Millisecond, 10*time.Millisecond))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Less(t, len(got), len(p.Queries()), "the no-data answer is not recorded as a sample")
}

func TestMonitor_ContextCanceled(t *testing.T) {
	m := NewMonitor(NewStaticProvider(), time.Minute, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := m.Sample(ctx, request(10*time.Second, 5*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetrying_Provider(t *testing.T) {
	p := NewStaticProvider().Script(constants.EnvGreen, Aggregate{ErrorRate: 0.3})
	p.FailNext(cerrors.Mark(testutil.ErrMockNetwork, cerrors.ErrInfrastructure))

	r := NewRetrying(p, retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond}, zerolog.Nop())
	agg, err := r.Query(context.Background(), Query{ServiceID: "api", Env: constants.EnvGreen})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, agg.ErrorRate, 1e-9)
	assert.Len(t, p.Queries(), 2)
}

func TestProviderFunc(t *testing.T) {
	f := ProviderFunc(func(_ context.Context, q Query) (Aggregate, error) {
		if q.Env == constants.EnvGreen {
			return Aggregate{ErrorRate: 5}, nil
		}
		return Aggregate{}, nil
	})
	agg, err := f.Query(context.Background(), Query{Env: constants.EnvGreen})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, agg.ErrorRate, 1e-9)
}
