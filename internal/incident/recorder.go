package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// idTimeFormat is the timestamp part of generated ids.
const idTimeFormat = "20060102-150405"

// NewID returns a sortable unique id such as "inc-20260102-030405-1a2b3c4d".
func NewID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format(idTimeFormat), uuid.NewString()[:8])
}

// NewAttemptID returns an id for a new deployment attempt.
func NewAttemptID(now time.Time) string {
	return NewID("att", now)
}

// Recorder writes incidents and archives attempts on top of a Store.
type Recorder struct {
	store  Store
	clock  clock.Clock
	logger zerolog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, clk clock.Clock, logger zerolog.Logger) *Recorder {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Recorder{store: store, clock: clk, logger: logger}
}

// Store returns the underlying store.
func (r *Recorder) Store() Store { return r.store }

// Record assigns an id and timestamp when missing and appends inc.
// Re-recording an incident id that is already stored succeeds without a
// second write, so callers may retry after an ambiguous failure.
func (r *Recorder) Record(ctx context.Context, inc *domain.Incident) error {
	if inc == nil {
		return fmt.Errorf("failed to record incident: %w", cerrors.ErrEmptyValue)
	}
	if inc.Timestamp.IsZero() {
		inc.Timestamp = r.clock.Now().UTC()
	}
	if inc.ID == "" {
		inc.ID = NewID("inc", inc.Timestamp)
	}
	if err := r.store.Append(ctx, inc); err != nil {
		if IsDuplicate(err) {
			r.logger.Debug().Str("incident_id", inc.ID).Msg("incident already recorded")
			return nil
		}
		r.logger.Error().Err(err).
			Str("incident_id", inc.ID).
			Str("service", inc.ServiceID).
			Msg("failed to record incident")
		return err
	}
	r.logger.Info().
		Str("incident_id", inc.ID).
		Str("type", inc.Type.String()).
		Str("service", inc.ServiceID).
		Str("attempt_id", inc.AttemptID).
		Str("from_env", inc.FromEnv.String()).
		Str("to_env", inc.ToEnv.String()).
		Str("reason", inc.Reason).
		Msg("incident recorded")
	return nil
}

// Archive stores a finalized attempt.
func (r *Recorder) Archive(ctx context.Context, a *domain.DeploymentAttempt) error {
	if err := r.store.SaveAttempt(ctx, a); err != nil {
		r.logger.Error().Err(err).Str("attempt_id", a.ID).Msg("failed to archive attempt")
		return err
	}
	r.logger.Debug().Str("attempt_id", a.ID).Str("outcome", a.Outcome.String()).Msg("attempt archived")
	return nil
}

// Latest returns the newest incident for serviceID, or nil if there is none.
func (r *Recorder) Latest(ctx context.Context, serviceID string) (*domain.Incident, error) {
	incs, err := r.store.List(ctx, Filter{ServiceID: serviceID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(incs) == 0 {
		return nil, nil //nolint:nilnil // no incident is not an error
	}
	return incs[0], nil
}

// LatestAttempt returns the newest archived attempt for serviceID, or nil.
func (r *Recorder) LatestAttempt(ctx context.Context, serviceID string) (*domain.DeploymentAttempt, error) {
	as, err := r.store.ListAttempts(ctx, serviceID, 1)
	if err != nil {
		return nil, err
	}
	if len(as) == 0 {
		return nil, nil //nolint:nilnil // no attempt is not an error
	}
	return as[0], nil
}

// Frozen reports whether automation is frozen for serviceID: the newest
// incident is a critical escalation. Any later incident lifts the freeze.
func (r *Recorder) Frozen(ctx context.Context, serviceID string) (bool, *domain.Incident, error) {
	latest, err := r.Latest(ctx, serviceID)
	if err != nil {
		return false, nil, err
	}
	if latest == nil || latest.Type != constants.IncidentCriticalEscalation {
		return false, latest, nil
	}
	return true, latest, nil
}

// CheckFrozen returns ErrServiceFrozen when serviceID is frozen.
func (r *Recorder) CheckFrozen(ctx context.Context, serviceID string) error {
	frozen, inc, err := r.Frozen(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("failed to check freeze for service '%s': %w", serviceID, err)
	}
	if !frozen {
		return nil
	}
	return fmt.Errorf("service '%s' frozen by incident %s: %w", serviceID, inc.ID, cerrors.ErrServiceFrozen)
}

// IsDuplicate reports whether err is a write-once conflict.
func IsDuplicate(err error) bool {
	return errors.Is(err, cerrors.ErrIncidentExists)
}
