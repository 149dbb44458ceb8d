// Package health implements the pre-shift and post-rollback health gate.
//
// Verify probes every configured endpoint of one environment with bounded
// parallelism. Each check gets a fixed number of attempts separated by a fixed
// delay, and the whole gate is bounded by an overall wall-clock timeout that
// holds no matter how slow an endpoint is.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/ctxutil"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// maxDrainBytes bounds how much of a probe response body is read before closing.
const maxDrainBytes = 64 << 10

// Check is one endpoint and the status it must return.
type Check struct {
	Endpoint       string
	Method         string
	ExpectedStatus int
}

// Options bound a single Verify call.
type Options struct {
	PerRequestTimeout time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	OverallTimeout    time.Duration
	Parallelism       int
}

// DefaultOptions returns the built-in gate limits.
func DefaultOptions() Options {
	return Options{
		PerRequestTimeout: constants.DefaultPerRequestTimeout,
		MaxRetries:        constants.DefaultHealthMaxRetries,
		RetryDelay:        constants.DefaultHealthRetryDelay,
		OverallTimeout:    constants.DefaultHealthOverall,
		Parallelism:       constants.DefaultHealthParallelism,
	}
}

// Report is the outcome of one gate run.
type Report struct {
	Target   domain.Target
	Passed   bool
	TimedOut bool

	// Results holds every attempt, grouped by check in configuration order.
	Results  []domain.HealthCheckResult
	Duration time.Duration

	// Failed is the final attempt of the check that failed the gate, if any.
	Failed *domain.HealthCheckResult
}

// Status converts the report into an environment health status.
func (r Report) Status() constants.HealthStatus {
	if r.Passed {
		return constants.HealthHealthy
	}
	return constants.HealthUnhealthy
}

// Err returns nil for a passing report, otherwise an error classed as a gate failure.
func (r Report) Err() error {
	switch {
	case r.Passed:
		return nil
	case r.TimedOut:
		return cerrors.Mark(fmt.Errorf("%s after %s: %w",
			r.Target.Env, r.Duration.Round(time.Millisecond), cerrors.ErrHealthGateTimeout), cerrors.ErrGateFailure)
	case r.Failed != nil:
		return cerrors.Mark(fmt.Errorf("%s %s: %s after %d attempts: %w",
			r.Target.Env, r.Failed.Endpoint, r.Failed.Error, r.Failed.Attempt, cerrors.ErrHealthCheckFailed), cerrors.ErrGateFailure)
	default:
		return cerrors.Mark(fmt.Errorf("%s: %w", r.Target.Env, cerrors.ErrHealthCheckFailed), cerrors.ErrGateFailure)
	}
}

// Verifier runs health gates over HTTP.
type Verifier struct {
	client *http.Client
	clock  clock.Clock
	logger zerolog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient sets the client used for probes.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithClock sets the clock used for result timestamps.
func WithClock(c clock.Clock) Option {
	return func(v *Verifier) { v.clock = c }
}

// NewVerifier creates a Verifier.
func NewVerifier(logger zerolog.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		client: &http.Client{},
		clock:  clock.RealClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// errCheckFailed stops the errgroup once one check has exhausted its attempts.
var errCheckFailed = errors.New("check failed")

// Verify runs checks against target. It passes iff every check returns its
// expected status within opts.MaxRetries attempts, and it always returns
// within opts.OverallTimeout. The first failing check cancels the others.
func (v *Verifier) Verify(ctx context.Context, target domain.Target, checks []Check, opts Options) Report {
	opts = withDefaults(opts)
	start := v.clock.Now()
	report := Report{Target: target}

	log := v.logger.With().
		Str("service", target.ServiceID).
		Str("env", target.Env.String()).
		Logger()
	log.Info().Int("checks", len(checks)).Dur("overall_timeout", opts.OverallTimeout).Msg("health gate started")

	gateCtx, cancel := context.WithTimeout(ctx, opts.OverallTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(gateCtx)
	g.SetLimit(opts.Parallelism)

	perCheck := make([][]domain.HealthCheckResult, len(checks))
	var mu sync.Mutex

	for i, check := range checks {
		g.Go(func() error {
			results, ok := v.runCheck(gctx, target, check, opts, log)
			mu.Lock()
			defer mu.Unlock()
			perCheck[i] = results
			if ok {
				return nil
			}
			if report.Failed == nil && gctx.Err() == nil && len(results) > 0 {
				last := results[len(results)-1]
				report.Failed = &last
			}
			return errCheckFailed
		})
	}
	err := g.Wait()

	for _, results := range perCheck {
		report.Results = append(report.Results, results...)
	}
	report.Duration = v.clock.Now().Sub(start)
	report.TimedOut = errors.Is(gateCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && err != nil
	report.Passed = err == nil && gateCtx.Err() == nil

	event := log.Info()
	if !report.Passed {
		event = log.Warn()
	}
	event.Bool("passed", report.Passed).
		Bool("timed_out", report.TimedOut).
		Int("attempts", len(report.Results)).
		Dur("duration", report.Duration).
		Msg("health gate finished")
	return report
}

// runCheck probes one endpoint up to MaxRetries times with a fixed delay.
func (v *Verifier) runCheck(ctx context.Context, target domain.Target, check Check, opts Options, log zerolog.Logger) ([]domain.HealthCheckResult, bool) {
	var results []domain.HealthCheckResult
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		res := v.probe(ctx, target, check, attempt, opts.PerRequestTimeout)
		results = append(results, res)
		if res.Passed {
			return results, true
		}

		log.Debug().
			Str("endpoint", check.Endpoint).
			Int("attempt", attempt).
			Int("status", res.StatusCode).
			Str("error", res.Error).
			Msg("health probe failed")

		if attempt == opts.MaxRetries {
			break
		}
		if err := ctxutil.Sleep(ctx, opts.RetryDelay); err != nil {
			break
		}
	}
	return results, false
}

func (v *Verifier) probe(ctx context.Context, target domain.Target, check Check, attempt int, timeout time.Duration) domain.HealthCheckResult {
	res := domain.HealthCheckResult{
		Target:    target.Env,
		Endpoint:  check.Endpoint,
		Attempt:   attempt,
		Timestamp: v.clock.Now(),
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, methodOrGet(check.Method), target.URL(check.Endpoint), nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	resp, err := v.client.Do(req)
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.Passed = resp.StatusCode == expectedOrOK(check.ExpectedStatus)
	if !res.Passed {
		res.Error = fmt.Sprintf("expected status %d, got %d", expectedOrOK(check.ExpectedStatus), resp.StatusCode)
	}
	return res
}

func withDefaults(opts Options) Options {
	d := DefaultOptions()
	if opts.PerRequestTimeout <= 0 {
		opts.PerRequestTimeout = d.PerRequestTimeout
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.OverallTimeout <= 0 {
		opts.OverallTimeout = d.OverallTimeout
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return opts
}

func methodOrGet(method string) string {
	if method == "" {
		return http.MethodGet
	}
	return method
}

func expectedOrOK(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}
