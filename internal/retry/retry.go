// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mrz1836/cutover/internal/constants"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// Policy bounds retries of a failing operation.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy returns the infrastructure retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     constants.DefaultInfraMaxAttempts,
		InitialInterval: constants.DefaultInfraInitialBackoff,
		MaxInterval:     constants.DefaultInfraMaxBackoff,
	}
}

// Notify is called before each retry with the failed attempt number.
type Notify func(err error, attempt int, next time.Duration)

// Infrastructure reports whether err is an infrastructure error.
func Infrastructure(err error) bool {
	return errors.Is(err, cerrors.ErrInfrastructure)
}

// Always retries every error.
func Always(error) bool { return true }

// Do calls fn until it succeeds, returns an error retryable rejects, the
// policy's attempts run out, or ctx ends. The last error is returned.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, notify Notify, fn func(context.Context) (T, error)) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	attempt := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)), //nolint:gosec // MaxAttempts is at least 1
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			notify(err, attempt, next)
		}))
	}

	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
