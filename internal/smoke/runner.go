// Package smoke runs ordered functional assertions against a candidate
// environment's internal address before it receives live traffic.
package smoke

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// maxBodyBytes bounds how much of a response is searched for BodyContains.
const maxBodyBytes = 1 << 20

// Assertion is one named request and its expected outcome.
type Assertion struct {
	Name           string
	Method         string
	Path           string
	Headers        map[string]string
	Body           string
	ExpectedStatus int

	// BodyContains, when set, must appear in the response body.
	BodyContains string
}

// Result is the outcome of one smoke run.
type Result struct {
	Target   domain.Target
	Passed   bool
	Results  []domain.AssertionResult
	Duration time.Duration

	// Failed is the assertion that stopped the run, if any.
	Failed *domain.AssertionResult
}

// Err returns nil for a passing run, otherwise an error classed as a gate failure.
func (r Result) Err() error {
	if r.Passed {
		return nil
	}
	if r.Failed == nil {
		return cerrors.Mark(fmt.Errorf("%s: %w", r.Target.Env, cerrors.ErrSmokeTestFailed), cerrors.ErrGateFailure)
	}
	return cerrors.Mark(fmt.Errorf("%s assertion '%s': %s: %w",
		r.Target.Env, r.Failed.Name, r.Failed.Error, cerrors.ErrSmokeTestFailed), cerrors.ErrGateFailure)
}

// Runner executes assertions sequentially.
type Runner struct {
	client *http.Client
	clock  clock.Clock
	logger zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithHTTPClient sets the client used for assertions.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) { r.client = c }
}

// NewRunner creates a Runner.
func NewRunner(logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		client: &http.Client{},
		clock:  clock.RealClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes assertions in order against target only. The first failing
// assertion ends the run; later assertions are not sent.
func (r *Runner) Run(ctx context.Context, target domain.Target, assertions []Assertion, perAssertionTimeout time.Duration) Result {
	if perAssertionTimeout <= 0 {
		perAssertionTimeout = constants.DefaultPerAssertionTimeout
	}
	start := r.clock.Now()
	result := Result{Target: target, Passed: true}

	log := r.logger.With().
		Str("service", target.ServiceID).
		Str("env", target.Env.String()).
		Logger()

	for i, a := range assertions {
		if a.Name == "" {
			a.Name = fmt.Sprintf("assertion-%d", i+1)
		}
		res := r.runOne(ctx, target, a, perAssertionTimeout)
		result.Results = append(result.Results, res)
		if !res.Passed {
			result.Passed = false
			failed := res
			result.Failed = &failed
			log.Warn().
				Str("assertion", res.Name).
				Int("status", res.StatusCode).
				Str("error", res.Error).
				Int("skipped", len(assertions)-i-1).
				Msg("smoke assertion failed")
			break
		}
		log.Debug().Str("assertion", res.Name).Dur("duration", res.Duration).Msg("smoke assertion passed")
	}

	result.Duration = r.clock.Now().Sub(start)
	log.Info().
		Bool("passed", result.Passed).
		Int("executed", len(result.Results)).
		Int("total", len(assertions)).
		Msg("smoke tests finished")
	return result
}

func (r *Runner) runOne(ctx context.Context, target domain.Target, a Assertion, timeout time.Duration) domain.AssertionResult {
	res := domain.AssertionResult{Name: a.Name}
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := a.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if a.Body != "" {
		body = strings.NewReader(a.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target.URL(a.Path), body)
	if err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	res.StatusCode = resp.StatusCode
	expected := a.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	if resp.StatusCode != expected {
		res.Error = fmt.Sprintf("expected status %d, got %d", expected, resp.StatusCode)
		res.Duration = time.Since(start)
		return res
	}

	if a.BodyContains != "" {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			res.Error = "read body: " + readErr.Error()
			res.Duration = time.Since(start)
			return res
		}
		if !strings.Contains(string(data), a.BodyContains) {
			res.Error = fmt.Sprintf("body does not contain %q", a.BodyContains)
			res.Duration = time.Since(start)
			return res
		}
	}

	res.Passed = true
	res.Duration = time.Since(start)
	return res
}
