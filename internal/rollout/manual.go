package rollout

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/lease"
	"github.com/mrz1836/cutover/internal/rollback"
)

// ManualRequest is an operator-initiated rollback.
type ManualRequest struct {
	ServiceID string
	Reason    string
	Initiator string
	Holder    string

	// Force files an abort request when a running attempt holds the lease,
	// so that attempt rolls itself back at its next checkpoint.
	Force bool
}

// ManualResult describes what a manual rollback did.
type ManualResult struct {
	// To is the environment traffic was moved to.
	To       constants.EnvID
	Incident *domain.Incident

	// AbortFiled is set when an abort request was filed instead.
	AbortFiled bool
}

// ManualRollback moves all traffic back to the source environment of the
// service's latest attempt. Without an archived attempt it picks the
// environment currently holding less traffic.
func (e *Executor) ManualRollback(ctx context.Context, req ManualRequest) (*ManualResult, error) {
	if req.ServiceID == "" {
		return nil, cerrors.Mark(fmt.Errorf("service %w", cerrors.ErrEmptyValue), cerrors.ErrValidation)
	}
	if req.Reason == "" {
		req.Reason = "manual rollback"
	}
	holder := req.Holder
	if holder == "" {
		holder = lease.DefaultHolder()
	}
	log := e.deps.Logger.With().Str("service", req.ServiceID).Str("initiator", req.Initiator).Logger()

	l, err := e.deps.Leases.Acquire(ctx, req.ServiceID, holder)
	if err != nil {
		if req.Force && errors.Is(err, cerrors.ErrLeaseHeld) {
			if aerr := e.deps.Leases.RequestAbort(ctx, req.ServiceID, req.Reason); aerr != nil {
				return nil, fmt.Errorf("failed to file abort for service '%s': %w", req.ServiceID, aerr)
			}
			log.Warn().Msg("attempt in progress, abort request filed")
			return &ManualResult{AbortFiled: true}, nil
		}
		return nil, fmt.Errorf("failed to start rollback for service '%s': %w", req.ServiceID, err)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancel()
		if err := e.deps.Leases.Release(rctx, l); err != nil {
			log.Warn().Err(err).Msg("failed to release lease")
		}
	}()

	to, err := e.rollbackTarget(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("to_env", to.String()).Str("reason", req.Reason).Msg("manual rollback")

	inc, err := e.deps.Rollback.Rollback(ctx, l, rollback.Request{
		ServiceID: req.ServiceID,
		From:      to.Other(),
		To:        to,
		Reason:    req.Reason,
		Initiator: req.Initiator,
		StartedAt: e.deps.Clock.Now(),
	})
	return &ManualResult{To: to, Incident: inc}, err
}

func (e *Executor) rollbackTarget(ctx context.Context, serviceID string) (constants.EnvID, error) {
	if e.deps.Incidents != nil {
		last, err := e.deps.Incidents.LatestAttempt(ctx, serviceID)
		if err != nil {
			return "", fmt.Errorf("failed to read last attempt for service '%s': %w", serviceID, err)
		}
		if last != nil && last.SourceEnv.Valid() {
			return last.SourceEnv, nil
		}
	}

	state, err := e.deps.Client.GetRouting(ctx, serviceID)
	if err != nil {
		return "", fmt.Errorf("failed to read routing for service '%s': %w", serviceID, err)
	}
	blue, green := state.Weights[constants.EnvBlue], state.Weights[constants.EnvGreen]
	switch {
	case blue < green:
		return constants.EnvBlue, nil
	case green < blue:
		return constants.EnvGreen, nil
	default:
		return "", cerrors.Mark(fmt.Errorf("service '%s' split %d/%d: %w", serviceID, blue, green, cerrors.ErrAmbiguousRouting), cerrors.ErrValidation)
	}
}

// Cancel files an abort request for the attempt running on serviceID.
func (e *Executor) Cancel(ctx context.Context, serviceID, reason string) error {
	if serviceID == "" {
		return cerrors.Mark(fmt.Errorf("service %w", cerrors.ErrEmptyValue), cerrors.ErrValidation)
	}
	holder, err := e.deps.Leases.Holder(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("failed to read lease for service '%s': %w", serviceID, err)
	}
	if holder == nil {
		return cerrors.Mark(fmt.Errorf("no attempt is running for service '%s': %w", serviceID, cerrors.ErrInvalidArgument), cerrors.ErrValidation)
	}
	if reason == "" {
		reason = "cancelled by operator"
	}
	if err := e.deps.Leases.RequestAbort(ctx, serviceID, reason); err != nil {
		return fmt.Errorf("failed to file abort for service '%s': %w", serviceID, err)
	}
	e.deps.Logger.Warn().
		Str("service", serviceID).
		Str("holder", holder.Holder).
		Str("reason", reason).
		Msg("abort requested")
	return nil
}
