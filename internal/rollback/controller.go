// Package rollback moves all traffic back to a known-good environment and
// checks that it is still healthy.
//
// A rollback is one routing write followed by a health gate on the target.
// If the target passes, a rollback incident is recorded. If it fails, or the
// write itself fails, the incident is a critical escalation, operators are
// paged, and the service stays frozen until someone intervenes.
package rollback

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/ctxutil"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/health"
	"github.com/mrz1836/cutover/internal/lease"
	"github.com/mrz1836/cutover/internal/notify"
	"github.com/mrz1836/cutover/internal/traffic"
)

// Verifier runs the health gate against the rollback target.
type Verifier interface {
	Verify(ctx context.Context, target domain.Target, checks []health.Check, opts health.Options) health.Report
}

// Recorder persists incidents.
type Recorder interface {
	Record(ctx context.Context, inc *domain.Incident) error
}

// Notifier queues operator notifications.
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) error
}

// Observer is told how every rollback ended.
type Observer interface {
	RollbackFinished(serviceID string, escalated bool)
}

// Request describes one rollback.
type Request struct {
	ServiceID string
	From      constants.EnvID
	To        constants.EnvID
	Reason    string
	Initiator string
	AttemptID string
	Revision  string

	// StartedAt is when the attempt being rolled back began. Incident
	// durations are measured from it.
	StartedAt time.Time
}

// Controller performs rollbacks.
type Controller struct {
	reverter *traffic.Reverter
	verifier Verifier
	targets  domain.Addresser
	checks   []health.Check
	opts     health.Options
	timeout  time.Duration

	recorder Recorder
	notifier Notifier
	observer Observer
	clock    clock.Clock
	logger   zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder records an incident for every rollback.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithNotifier announces every rollback.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithObserver reports rollback results to o.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithClock sets the clock used for incident timestamps.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithTimeout bounds the whole rollback. It defaults to DefaultRollbackTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// NewController creates a Controller that re-verifies targets with checks.
func NewController(reverter *traffic.Reverter, verifier Verifier, targets domain.Addresser, checks []health.Check, opts health.Options, logger zerolog.Logger, options ...Option) *Controller {
	c := &Controller{
		reverter: reverter,
		verifier: verifier,
		targets:  targets,
		checks:   checks,
		opts:     opts,
		timeout:  constants.DefaultRollbackTimeout,
		clock:    clock.RealClock{},
		logger:   logger,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Rollback routes all traffic to req.To and re-verifies it. It runs on a
// context detached from ctx so a cancelled attempt still completes its
// rollback within the configured timeout.
//
// On success the rollback incident is returned with a nil error. When the
// target fails re-verification, or traffic could not be moved, the critical
// escalation incident is returned with an error wrapping ErrCriticalEscalation.
func (c *Controller) Rollback(ctx context.Context, l *lease.Lease, req Request) (*domain.Incident, error) {
	if !req.To.Valid() || !req.From.Valid() || req.From == req.To {
		return nil, cerrors.Mark(fmt.Errorf("rollback %q -> %q: %w", req.From, req.To, cerrors.ErrUnknownEnvironment), cerrors.ErrValidation)
	}

	rctx, cancel := ctxutil.Detached(ctx, c.timeout)
	defer cancel()

	log := c.logger.With().
		Str("service", req.ServiceID).
		Str("attempt_id", req.AttemptID).
		Str("from_env", req.From.String()).
		Str("to_env", req.To.String()).
		Logger()
	log.Warn().Str("reason", req.Reason).Msg("rolling back")

	if _, err := c.reverter.Revert(rctx, l, req.ServiceID, req.To); err != nil {
		log.Error().Err(err).Msg("rollback could not move traffic")
		return c.escalate(rctx, req, fmt.Sprintf("%s; rollback failed to route traffic to %s: %v", req.Reason, req.To, err))
	}

	target, err := c.targets(req.ServiceID, req.To)
	if err != nil {
		log.Error().Err(err).Msg("rollback target has no address")
		return c.escalate(rctx, req, fmt.Sprintf("%s; rollback target %s not verifiable: %v", req.Reason, req.To, err))
	}

	report := c.verifier.Verify(rctx, target, c.checks, c.opts)
	if !report.Passed {
		verr := report.Err()
		log.Error().Err(verr).Msg("rollback target failed health verification")
		return c.escalate(rctx, req, fmt.Sprintf("%s; %s failed re-verification after rollback: %v", req.Reason, req.To, verr))
	}

	inc := c.incident(req, constants.IncidentRollback, constants.OutcomeRolledBack, req.Reason)
	c.finish(rctx, inc, false)
	log.Info().Str("incident_id", inc.ID).Msg("rollback complete")
	return inc, nil
}

func (c *Controller) escalate(ctx context.Context, req Request, reason string) (*domain.Incident, error) {
	inc := c.incident(req, constants.IncidentCriticalEscalation, constants.OutcomeFailed, reason)
	c.finish(ctx, inc, true)
	c.logger.Error().
		Str("service", req.ServiceID).
		Str("incident_id", inc.ID).
		Msg("critical escalation: automation frozen for service")
	return inc, cerrors.NewExitCode2Error(fmt.Errorf("service '%s': %s: %w", req.ServiceID, reason, cerrors.ErrCriticalEscalation))
}

func (c *Controller) incident(req Request, typ constants.IncidentType, status constants.Outcome, reason string) *domain.Incident {
	now := c.clock.Now().UTC()
	started := req.StartedAt
	if started.IsZero() {
		started = now
	}
	return &domain.Incident{
		Type:            typ,
		ServiceID:       req.ServiceID,
		AttemptID:       req.AttemptID,
		Reason:          reason,
		FromEnv:         req.From,
		ToEnv:           req.To,
		Timestamp:       now,
		DurationSeconds: now.Sub(started).Seconds(),
		Initiator:       req.Initiator,
		Revision:        req.Revision,
		Status:          status,
	}
}

// finish records and announces inc. Failures here are logged, never returned:
// traffic has already moved and the outcome must not change.
func (c *Controller) finish(ctx context.Context, inc *domain.Incident, escalated bool) {
	if c.observer != nil {
		c.observer.RollbackFinished(inc.ServiceID, escalated)
	}
	if c.recorder != nil {
		if err := c.recorder.Record(ctx, inc); err != nil {
			c.logger.Error().Err(err).Str("service", inc.ServiceID).Msg("failed to record rollback incident")
		}
	}
	if c.notifier != nil {
		if err := c.notifier.Dispatch(ctx, notify.FromIncident(inc)); err != nil {
			c.logger.Error().Err(err).Str("service", inc.ServiceID).Msg("failed to queue rollback notification")
		}
	}
}
