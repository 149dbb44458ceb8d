package orchestration

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	"github.com/mrz1836/cutover/internal/retry"
)

// Retrying decorates a Client. Calls failing with errors.ErrInfrastructure
// are retried with exponential backoff; every other error is returned at once.
type Retrying struct {
	inner  Client
	policy retry.Policy
	logger zerolog.Logger
}

// NewRetrying wraps inner with policy.
func NewRetrying(inner Client, policy retry.Policy, logger zerolog.Logger) *Retrying {
	return &Retrying{inner: inner, policy: policy, logger: logger}
}

// Apply implements Client.
func (r *Retrying) Apply(ctx context.Context, spec domain.WorkloadSpec) error {
	_, err := retry.Do(ctx, r.policy, retry.Infrastructure, r.notify(OpApply), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.Apply(ctx, spec)
	})
	return err
}

// GetStatus implements Client.
func (r *Retrying) GetStatus(ctx context.Context, serviceID string, env constants.EnvID) (domain.WorkloadStatus, error) {
	return retry.Do(ctx, r.policy, retry.Infrastructure, r.notify(OpGetStatus), func(ctx context.Context) (domain.WorkloadStatus, error) {
		return r.inner.GetStatus(ctx, serviceID, env)
	})
}

// GetRouting implements Client.
func (r *Retrying) GetRouting(ctx context.Context, serviceID string) (domain.RoutingState, error) {
	return retry.Do(ctx, r.policy, retry.Infrastructure, r.notify(OpGetRouting), func(ctx context.Context) (domain.RoutingState, error) {
		return r.inner.GetRouting(ctx, serviceID)
	})
}

// PatchWeights implements Client. A single write either lands or it does
// not, so retrying it cannot produce a partial routing state.
func (r *Retrying) PatchWeights(ctx context.Context, serviceID string, weights domain.Weights) (domain.RoutingState, error) {
	return retry.Do(ctx, r.policy, retry.Infrastructure, r.notify(OpPatchWeights), func(ctx context.Context) (domain.RoutingState, error) {
		return r.inner.PatchWeights(ctx, serviceID, weights)
	})
}

func (r *Retrying) notify(op string) retry.Notify {
	return func(err error, attempt int, next time.Duration) {
		r.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("orchestration call failed, retrying")
	}
}
