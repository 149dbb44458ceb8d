package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// SampleRequest describes one stage's sampling run.
type SampleRequest struct {
	ServiceID string
	Env       constants.EnvID

	// Duration is the stage dwell. Interval is the sampling period.
	Duration time.Duration
	Interval time.Duration

	Thresholds Thresholds
	Policy     Policy
}

// Monitor samples a Provider periodically for the length of a stage.
type Monitor struct {
	provider Provider
	window   time.Duration
	clock    clock.Clock
	logger   zerolog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock sets the clock used for sample timestamps.
func WithClock(c clock.Clock) MonitorOption {
	return func(m *Monitor) { m.clock = c }
}

// NewMonitor creates a Monitor querying provider over window.
func NewMonitor(provider Provider, window time.Duration, logger zerolog.Logger, opts ...MonitorOption) *Monitor {
	if window <= 0 {
		window = constants.DefaultMetricsWindow
	}
	m := &Monitor{
		provider: provider,
		window:   window,
		clock:    clock.RealClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sample takes a sample immediately and then every Interval until Duration
// has elapsed. As soon as the samples taken so far fail the policy, sampling
// stops and the samples are returned without waiting out the dwell.
//
// A query answering with no data is skipped. Any other query error ends the
// run and is returned with the samples collected so far.
func (m *Monitor) Sample(ctx context.Context, req SampleRequest) ([]domain.MetricSample, error) {
	interval := req.Interval
	if interval <= 0 {
		interval = constants.DefaultSampleInterval
	}
	log := m.logger.With().
		Str("service", req.ServiceID).
		Str("env", req.Env.String()).
		Logger()

	dwell := time.NewTimer(req.Duration)
	defer dwell.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var samples []domain.MetricSample
	run := 0
	limit := req.Policy.limit()

	take := func() (bool, error) {
		agg, err := m.provider.Query(ctx, Query{ServiceID: req.ServiceID, Env: req.Env, Window: m.window})
		if errors.Is(err, cerrors.ErrNoMetricsData) {
			log.Warn().Err(err).Msg("metrics sample skipped")
			return false, nil
		}
		if err != nil {
			return true, err
		}

		s := domain.MetricSample{
			Timestamp:    m.clock.Now(),
			ErrorRate:    agg.ErrorRate,
			P95LatencyMs: agg.P95LatencyMs,
			Breached:     req.Thresholds.Breached(agg.ErrorRate, agg.P95LatencyMs),
		}
		samples = append(samples, s)

		if !s.Breached {
			run = 0
			log.Debug().Float64("error_rate", s.ErrorRate).Float64("p95_ms", s.P95LatencyMs).Msg("metrics sample")
			return false, nil
		}
		run++
		log.Warn().
			Float64("error_rate", s.ErrorRate).
			Float64("p95_ms", s.P95LatencyMs).
			Int("consecutive", run).
			Int("limit", limit).
			Msg("metrics sample breached threshold")
		return run >= limit, nil
	}

	if stop, err := take(); stop || err != nil {
		return samples, err
	}
	for {
		select {
		case <-ctx.Done():
			return samples, ctx.Err()
		case <-dwell.C:
			return samples, nil
		case <-ticker.C:
			if stop, err := take(); stop || err != nil {
				return samples, err
			}
		}
	}
}
