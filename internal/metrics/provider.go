// Package metrics samples an environment's error rate and latency while it
// carries staged traffic, and turns those samples into a stage verdict.
package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/retry"
)

// Query scopes one metrics read to a service environment.
type Query struct {
	ServiceID string
	Env       constants.EnvID

	// Window is the look-back range the backend aggregates over.
	Window time.Duration
}

// Aggregate is the backend's answer for one Query.
type Aggregate struct {
	// ErrorRate is in percent (0..100).
	ErrorRate float64

	P95LatencyMs float64
}

// Provider reads aggregates from a metrics backend.
type Provider interface {
	Query(ctx context.Context, q Query) (Aggregate, error)
}

// Retrying retries a Provider on infrastructure errors.
type Retrying struct {
	inner  Provider
	policy retry.Policy
	logger zerolog.Logger
}

// NewRetrying wraps inner with policy.
func NewRetrying(inner Provider, policy retry.Policy, logger zerolog.Logger) *Retrying {
	return &Retrying{inner: inner, policy: policy, logger: logger}
}

// Query implements Provider.
func (r *Retrying) Query(ctx context.Context, q Query) (Aggregate, error) {
	notify := func(err error, attempt int, next time.Duration) {
		r.logger.Warn().
			Err(err).
			Str("service", q.ServiceID).
			Str("env", q.Env.String()).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("metrics query failed, retrying")
	}
	return retry.Do(ctx, r.policy, retry.Infrastructure, notify, func(ctx context.Context) (Aggregate, error) {
		return r.inner.Query(ctx, q)
	})
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, q Query) (Aggregate, error)

// Query implements Provider.
func (f ProviderFunc) Query(ctx context.Context, q Query) (Aggregate, error) {
	return f(ctx, q)
}
