// Package environment determines which environment of a service is live and
// which one an attempt deploys to.
//
// The answer is an immutable Snapshot taken once per attempt. It is checked
// against live routing again only at defined checkpoints, never polled while
// a stage is running.
package environment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/orchestration"
)

// Snapshot is the routing state an attempt was planned against.
type Snapshot struct {
	serviceID string
	active    constants.EnvID
	target    constants.EnvID
	weights   domain.Weights
	revision  string
	takenAt   time.Time
}

// ServiceID returns the service the snapshot belongs to.
func (s Snapshot) ServiceID() string { return s.serviceID }

// Active returns the environment serving all traffic when the snapshot was taken.
func (s Snapshot) Active() constants.EnvID { return s.active }

// Target returns the environment the attempt deploys to.
func (s Snapshot) Target() constants.EnvID { return s.target }

// Weights returns a copy of the observed weights.
func (s Snapshot) Weights() domain.Weights { return s.weights.Clone() }

// Revision returns the routing object's revision at snapshot time.
func (s Snapshot) Revision() string { return s.revision }

// TakenAt returns when the snapshot was taken.
func (s Snapshot) TakenAt() time.Time { return s.takenAt }

// Resolver builds and revalidates snapshots.
type Resolver struct {
	client orchestration.Client
	clock  clock.Clock
	logger zerolog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(client orchestration.Client, c clock.Clock, logger zerolog.Logger) *Resolver {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Resolver{client: client, clock: c, logger: logger}
}

// Resolve reads live routing for serviceID. The active environment must hold
// exactly 100. The target is requested when given, otherwise the environment
// that is not active. Requesting the active environment fails with
// errors.ErrAlreadyActive.
func (r *Resolver) Resolve(ctx context.Context, serviceID string, requested constants.EnvID) (Snapshot, error) {
	if requested != "" && !requested.Valid() {
		return Snapshot{}, cerrors.Mark(fmt.Errorf("environment %q: %w", requested, cerrors.ErrUnknownEnvironment), cerrors.ErrValidation)
	}

	state, err := r.client.GetRouting(ctx, serviceID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read routing for service '%s': %w", serviceID, err)
	}

	active, ok := state.Weights.Active()
	if !ok {
		return Snapshot{}, fmt.Errorf("service '%s' routing blue=%d green=%d: %w",
			serviceID, state.Weights[constants.EnvBlue], state.Weights[constants.EnvGreen], cerrors.ErrAmbiguousRouting)
	}

	target := active.Other()
	if requested != "" {
		if requested == active {
			return Snapshot{}, cerrors.Mark(fmt.Errorf("service '%s' %s: %w", serviceID, requested, cerrors.ErrAlreadyActive), cerrors.ErrValidation)
		}
		target = requested
	}

	snap := Snapshot{
		serviceID: serviceID,
		active:    active,
		target:    target,
		weights:   state.Weights.Clone(),
		revision:  state.Revision,
		takenAt:   r.clock.Now(),
	}
	r.logger.Info().
		Str("service", serviceID).
		Str("active", active.String()).
		Str("target", target.String()).
		Str("revision", state.Revision).
		Msg("environment resolved")
	return snap, nil
}

// Revalidate fails with errors.ErrSnapshotStale (class ErrConflict) when live
// routing no longer matches snap.
func (r *Resolver) Revalidate(ctx context.Context, snap Snapshot) error {
	state, err := r.client.GetRouting(ctx, snap.serviceID)
	if err != nil {
		return fmt.Errorf("failed to revalidate routing for service '%s': %w", snap.serviceID, err)
	}

	changed := !state.Weights.Equal(snap.weights)
	if snap.revision != "" && state.Revision != "" && state.Revision != snap.revision {
		changed = true
	}
	if changed {
		r.logger.Warn().
			Str("service", snap.serviceID).
			Str("snapshot_revision", snap.revision).
			Str("live_revision", state.Revision).
			Time("snapshot_taken_at", snap.TakenAt()).
			Msg("routing changed since snapshot")
		return cerrors.Mark(fmt.Errorf("service '%s' routing changed since %s (revision %s -> %s): %w",
			snap.serviceID, snap.TakenAt().Format(time.RFC3339), snap.revision, state.Revision, cerrors.ErrSnapshotStale), cerrors.ErrConflict)
	}
	return nil
}

// IsResolveFailure reports whether err means the active environment could not
// be determined, as opposed to a rejected request.
func IsResolveFailure(err error) bool {
	return err != nil && !errors.Is(err, cerrors.ErrValidation)
}
