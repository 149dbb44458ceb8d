package rollout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	"github.com/mrz1836/cutover/internal/environment"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/health"
	"github.com/mrz1836/cutover/internal/incident"
	"github.com/mrz1836/cutover/internal/lease"
	"github.com/mrz1836/cutover/internal/metrics"
	"github.com/mrz1836/cutover/internal/notify"
	"github.com/mrz1836/cutover/internal/orchestration"
	"github.com/mrz1836/cutover/internal/rollback"
	"github.com/mrz1836/cutover/internal/smoke"
	"github.com/mrz1836/cutover/internal/traffic"
)

// finishTimeout bounds the bookkeeping done after an attempt ends.
const finishTimeout = 30 * time.Second

// Config holds the rollout settings of an Executor.
type Config struct {
	// Stages are ascending traffic percentages ending at 100.
	Stages         []int
	Dwell          time.Duration
	SampleInterval time.Duration
	Thresholds     metrics.Thresholds
	Policy         metrics.Policy

	ResolveTimeout     time.Duration
	DeployReadyTimeout time.Duration
	StageGrace         time.Duration
	PollInterval       time.Duration

	HealthChecks        []health.Check
	HealthOptions       health.Options
	SmokeAssertions     []smoke.Assertion
	PerAssertionTimeout time.Duration

	// LeaseRenewInterval renews expiring leases in the background. 0 disables renewal.
	LeaseRenewInterval time.Duration
}

// DefaultConfig returns the built-in rollout settings.
func DefaultConfig() Config {
	return Config{
		Stages:              constants.DefaultStages(),
		Dwell:               constants.DefaultDwell,
		SampleInterval:      constants.DefaultSampleInterval,
		Thresholds:          metrics.Thresholds{MaxErrorRate: constants.DefaultMaxErrorRate, MaxP95LatencyMs: constants.DefaultMaxP95LatencyMs},
		Policy:              metrics.Policy{ConsecutiveBreaches: constants.DefaultConsecutiveBreaches},
		ResolveTimeout:      constants.DefaultResolveTimeout,
		DeployReadyTimeout:  constants.DefaultDeployReadyTimeout,
		StageGrace:          constants.DefaultStageGrace,
		PollInterval:        constants.DefaultStatusPollInterval,
		HealthOptions:       health.DefaultOptions(),
		PerAssertionTimeout: constants.DefaultPerAssertionTimeout,
		LeaseRenewInterval:  constants.DefaultLeaseTTL / 3,
	}
}

// WorkloadFunc builds the workload spec deploying revision to env.
type WorkloadFunc func(serviceID string, env constants.EnvID, revision string) (domain.WorkloadSpec, error)

// SmokeRunner runs the smoke suite against a target.
type SmokeRunner interface {
	Run(ctx context.Context, target domain.Target, assertions []smoke.Assertion, perAssertionTimeout time.Duration) smoke.Result
}

// Sampler samples metrics for one stage.
type Sampler interface {
	Sample(ctx context.Context, req metrics.SampleRequest) ([]domain.MetricSample, error)
}

// RollbackRunner reverts traffic after a failed stage.
type RollbackRunner interface {
	Rollback(ctx context.Context, l *lease.Lease, req rollback.Request) (*domain.Incident, error)
}

// IncidentLog records incidents, archives attempts and reports freezes.
type IncidentLog interface {
	Record(ctx context.Context, inc *domain.Incident) error
	Archive(ctx context.Context, a *domain.DeploymentAttempt) error
	CheckFrozen(ctx context.Context, serviceID string) error
	LatestAttempt(ctx context.Context, serviceID string) (*domain.DeploymentAttempt, error)
}

// Observer is told about finished stages and attempts.
type Observer interface {
	StageFinished(serviceID string, stage domain.StageResult)
	AttemptFinished(a *domain.DeploymentAttempt)
}

// Deps are the collaborators of an Executor. Incidents, Notifier, Observer
// and Tracer are optional.
type Deps struct {
	Client    orchestration.Client
	Leases    lease.Manager
	Resolver  *environment.Resolver
	Traffic   *traffic.Controller
	Verifier  rollback.Verifier
	Smoke     SmokeRunner
	Monitor   Sampler
	Rollback  RollbackRunner
	Targets   domain.Addresser
	Workloads WorkloadFunc

	Incidents IncidentLog
	Notifier  rollback.Notifier
	Observer  Observer
	Tracer    trace.Tracer

	// Interrupt, when closed, stops the attempt at its next checkpoint.
	Interrupt <-chan struct{}

	Clock  clock.Clock
	Logger zerolog.Logger
}

// RunRequest starts one attempt.
type RunRequest struct {
	ServiceID string
	// Environment is the requested target. Empty means the idle environment.
	Environment constants.EnvID
	Revision    string
	// Force runs a frozen service.
	Force bool
	// DryRun requires a simulating orchestration client and skips incidents,
	// notifications and the attempt archive.
	DryRun    bool
	Initiator string
	// Holder names the lease holder. Empty uses lease.DefaultHolder.
	Holder string
}

// Result is a finished attempt and the incident describing it.
type Result struct {
	Attempt  *domain.DeploymentAttempt
	Incident *domain.Incident
}

// Executor runs deployment attempts through the state machine.
type Executor struct {
	cfg  Config
	deps Deps
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config, deps Deps) *Executor {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Executor{cfg: cfg, deps: deps}
}

func (e *Executor) validate(req RunRequest) error {
	switch {
	case req.ServiceID == "":
		return cerrors.Mark(fmt.Errorf("service %w", cerrors.ErrEmptyValue), cerrors.ErrValidation)
	case req.Revision == "":
		return cerrors.Mark(fmt.Errorf("revision %w", cerrors.ErrEmptyValue), cerrors.ErrValidation)
	case req.Environment != "" && !req.Environment.Valid():
		return cerrors.Mark(fmt.Errorf("environment %q: %w", req.Environment, cerrors.ErrUnknownEnvironment), cerrors.ErrValidation)
	case req.DryRun && !orchestration.IsDryRun(e.deps.Client):
		return cerrors.Mark(fmt.Errorf("dry run needs a simulating orchestration client: %w", cerrors.ErrInvalidArgument), cerrors.ErrValidation)
	case len(e.cfg.Stages) == 0:
		return cerrors.Mark(fmt.Errorf("rollout stages %w", cerrors.ErrEmptyValue), cerrors.ErrValidation)
	}
	return nil
}

// Run executes one attempt for req.ServiceID and returns it once terminal.
//
// A nil error means the attempt completed. Otherwise the error carries the
// failure class that decides the exit code: gate failures, conflicts and
// rollbacks exit 1; resolve failures, exhausted infrastructure retries,
// frozen services and critical escalations exit 2. Result is nil only when
// no attempt was started.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	log := e.deps.Logger.With().Str("service", req.ServiceID).Bool("dry_run", req.DryRun).Logger()

	if e.deps.Incidents != nil && !req.DryRun {
		if err := e.deps.Incidents.CheckFrozen(ctx, req.ServiceID); err != nil {
			if !req.Force || !errors.Is(err, cerrors.ErrServiceFrozen) {
				return nil, err
			}
			log.Warn().Err(err).Msg("service frozen, continuing because of force")
		}
	}

	holder := req.Holder
	if holder == "" {
		holder = lease.DefaultHolder()
	}
	l, err := e.deps.Leases.Acquire(ctx, req.ServiceID, holder)
	if err != nil {
		return nil, fmt.Errorf("failed to start attempt for service '%s': %w", req.ServiceID, err)
	}
	stopRenew := lease.KeepAlive(ctx, e.deps.Leases, l, e.cfg.LeaseRenewInterval, log)
	defer func() {
		stopRenew()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancel()
		if err := e.deps.Leases.ClearAbort(rctx, req.ServiceID); err != nil {
			log.Warn().Err(err).Msg("failed to clear abort request")
		}
		if err := e.deps.Leases.Release(rctx, l); err != nil {
			log.Warn().Err(err).Msg("failed to release lease")
		}
	}()

	now := e.deps.Clock.Now().UTC()
	a := &domain.DeploymentAttempt{
		ID:            incident.NewAttemptID(now),
		ServiceID:     req.ServiceID,
		TargetEnv:     req.Environment,
		Revision:      req.Revision,
		Initiator:     req.Initiator,
		DryRun:        req.DryRun,
		State:         constants.StateIdle,
		Outcome:       constants.OutcomeInProgress,
		StartedAt:     now,
		Stages:        []domain.StageResult{},
		Transitions:   []domain.Transition{},
		SchemaVersion: constants.AttemptSchemaVersion,
	}

	ctx, span := e.deps.Tracer.Start(ctx, "rollout.attempt", trace.WithAttributes(
		attribute.String("service", req.ServiceID),
		attribute.String("attempt_id", a.ID),
		attribute.String("revision", req.Revision),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer span.End()

	r := &attempt{
		e:    e,
		req:  req,
		a:    a,
		l:    l,
		span: span,
		log:  log.With().Str("attempt_id", a.ID).Logger(),
	}
	r.log.Info().Str("revision", req.Revision).Str("initiator", req.Initiator).Msg("attempt started")

	cause := r.execute(ctx)
	inc := r.finish(ctx, cause)
	if cause != nil {
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
	}
	return &Result{Attempt: a, Incident: inc}, cause
}

// attempt is the mutable state of one Run.
type attempt struct {
	e    *Executor
	req  RunRequest
	a    *domain.DeploymentAttempt
	l    *lease.Lease
	snap environment.Snapshot
	span trace.Span
	log  zerolog.Logger

	// shifted is set once a stage weight has been written.
	shifted bool
	// incident is set when the rollback controller already recorded one.
	incident *domain.Incident
}

func (r *attempt) enter(to constants.AttemptState, reason string) error {
	from := r.a.State
	if err := Transition(r.a, to, reason, r.e.deps.Clock.Now()); err != nil {
		r.log.Error().Err(err).Msg("invalid attempt transition")
		return err
	}
	r.span.AddEvent("transition", trace.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
	ev := r.log.Info()
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Str("from", from.String()).Str("state", to.String()).Msg("attempt state changed")
	return nil
}

// abort ends a pre-shift attempt. Traffic has not been touched.
func (r *attempt) abort(cause error) error {
	if err := r.enter(constants.StateAborted, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// step enters state and runs fn, aborting on any failure.
func (r *attempt) step(ctx context.Context, state constants.AttemptState, fn func(context.Context) error) error {
	if err := r.checkpoint(ctx); err != nil {
		return r.abort(err)
	}
	if err := r.enter(state, ""); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return r.abort(err)
	}
	return nil
}

func (r *attempt) execute(ctx context.Context) error {
	if err := r.enter(constants.StateResolvingEnvironment, ""); err != nil {
		return err
	}
	if err := r.resolve(ctx); err != nil {
		return r.abort(err)
	}
	for _, s := range []struct {
		state constants.AttemptState
		fn    func(context.Context) error
	}{
		{constants.StateDeploying, r.deploy},
		{constants.StateHealthGating, r.healthGate},
		{constants.StateSmokeTesting, r.smokeTest},
	} {
		if err := r.step(ctx, s.state, s.fn); err != nil {
			return err
		}
	}

	if err := r.checkpoint(ctx); err != nil {
		return r.abort(err)
	}
	if err := r.e.deps.Resolver.Revalidate(ctx, r.snap); err != nil {
		return r.abort(err)
	}
	if err := r.enter(constants.StateTrafficShifting, ""); err != nil {
		return err
	}
	return r.shift(ctx)
}

// checkpoint returns an error when the attempt should stop here: the
// context ended, the process was interrupted, or an operator filed an abort.
func (r *attempt) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("attempt cancelled: %w: %w", cerrors.ErrAbortRequested, err)
	}
	if r.e.deps.Interrupt != nil {
		select {
		case <-r.e.deps.Interrupt:
			return fmt.Errorf("interrupted: %w", cerrors.ErrAbortRequested)
		default:
		}
	}
	reason, ok, err := r.e.deps.Leases.AbortRequested(ctx, r.req.ServiceID)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to read abort request")
		return nil
	}
	if ok {
		return fmt.Errorf("%s: %w", reason, cerrors.ErrAbortRequested)
	}
	return nil
}

func (r *attempt) resolve(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, r.e.cfg.ResolveTimeout)
	defer cancel()

	snap, err := r.e.deps.Resolver.Resolve(rctx, r.req.ServiceID, r.req.Environment)
	if err != nil {
		if environment.IsResolveFailure(err) {
			return cerrors.NewExitCode2Error(err)
		}
		return err
	}
	r.snap = snap
	r.a.SourceEnv = snap.Active()
	r.a.TargetEnv = snap.Target()
	r.log = r.log.With().Str("source_env", snap.Active().String()).Str("target_env", snap.Target().String()).Logger()
	return nil
}

func (r *attempt) deploy(ctx context.Context) error {
	spec, err := r.e.deps.Workloads(r.req.ServiceID, r.a.TargetEnv, r.req.Revision)
	if err != nil {
		return cerrors.Mark(err, cerrors.ErrValidation)
	}

	dctx, cancel := context.WithTimeout(ctx, r.e.cfg.DeployReadyTimeout)
	defer cancel()

	if err := r.e.deps.Client.Apply(dctx, spec); err != nil {
		return fmt.Errorf("failed to deploy %s to %s: %w", r.req.Revision, r.a.TargetEnv, err)
	}
	status, err := orchestration.WaitReady(dctx, r.e.deps.Client, r.req.ServiceID, r.a.TargetEnv, r.e.cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("%s did not become ready within %s: %w", status.Name, r.e.cfg.DeployReadyTimeout, err)
	}
	r.log.Info().Str("workload", status.Name).Int32("ready", status.ReadyReplicas).Msg("workload ready")
	return nil
}

func (r *attempt) target() (domain.Target, error) {
	t, err := r.e.deps.Targets(r.req.ServiceID, r.a.TargetEnv)
	if err != nil {
		return domain.Target{}, cerrors.Mark(err, cerrors.ErrValidation)
	}
	return t, nil
}

func (r *attempt) healthGate(ctx context.Context) error {
	t, err := r.target()
	if err != nil {
		return err
	}
	report := r.e.deps.Verifier.Verify(ctx, t, r.e.cfg.HealthChecks, r.e.cfg.HealthOptions)
	return report.Err()
}

func (r *attempt) smokeTest(ctx context.Context) error {
	t, err := r.target()
	if err != nil {
		return err
	}
	res := r.e.deps.Smoke.Run(ctx, t, r.e.cfg.SmokeAssertions, r.e.cfg.PerAssertionTimeout)
	return res.Err()
}

// shift walks the stages. Once any weight has been written, every failure
// goes through rollback.
func (r *attempt) shift(ctx context.Context) error {
	svc := r.req.ServiceID
	r.e.deps.Traffic.BeginShift(svc, r.a.TargetEnv)
	defer r.e.deps.Traffic.EndShift(svc)

	for _, pct := range r.e.cfg.Stages {
		if err := r.checkpoint(ctx); err != nil {
			return r.fail(ctx, err)
		}
		if _, err := r.e.deps.Traffic.SetWeights(ctx, r.l, svc, domain.Split(r.a.TargetEnv, pct)); err != nil {
			cause := fmt.Errorf("stage %d%%: %w", pct, err)
			if !r.shifted && r.routingUntouched(ctx) {
				return r.abort(cause)
			}
			return r.rollback(ctx, cause)
		}
		r.shifted = true

		stage, err := r.runStage(ctx, pct)
		r.a.Stages = append(r.a.Stages, stage)
		if r.e.deps.Observer != nil {
			r.e.deps.Observer.StageFinished(svc, stage)
		}
		r.log.Info().
			Int("stage", pct).
			Str("verdict", stage.Verdict.String()).
			Float64("error_rate", stage.Metrics.ErrorRate).
			Float64("p95_ms", stage.Metrics.P95LatencyMs).
			Msg("stage evaluated")

		if stage.Verdict == constants.VerdictFail {
			cause := cerrors.Mark(fmt.Errorf("stage %d%%: %s", pct, stage.Reason), cerrors.ErrThresholdBreach)
			if err != nil {
				cause = fmt.Errorf("stage %d%%: %s: %w", pct, stage.Reason, err)
			}
			return r.fail(ctx, cause)
		}
	}
	return r.enter(constants.StateCompleted, "")
}

// fail ends a shifting attempt between stages: abort when no weight was
// written yet, otherwise roll back.
func (r *attempt) fail(ctx context.Context, cause error) error {
	if !r.shifted {
		return r.abort(cause)
	}
	return r.rollback(ctx, cause)
}

// routingUntouched re-reads routing after a failed write. A failed write may
// still have been applied, so only routing that still matches the snapshot
// counts as untouched; a read error counts as touched.
func (r *attempt) routingUntouched(ctx context.Context) bool {
	state, err := r.e.deps.Client.GetRouting(ctx, r.req.ServiceID)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to re-read routing after failed write")
		return false
	}
	if !state.Weights.Equal(r.snap.Weights()) {
		r.log.Warn().
			Int("blue", state.Weights[constants.EnvBlue]).
			Int("green", state.Weights[constants.EnvGreen]).
			Msg("failed write was applied")
		return false
	}
	return true
}

func (r *attempt) runStage(ctx context.Context, pct int) (domain.StageResult, error) {
	clk := r.e.deps.Clock
	start := clk.Now()
	sctx, cancel := context.WithTimeout(ctx, r.e.cfg.Dwell+r.e.cfg.StageGrace)
	samples, err := r.e.deps.Monitor.Sample(sctx, metrics.SampleRequest{
		ServiceID:  r.req.ServiceID,
		Env:        r.a.TargetEnv,
		Duration:   r.e.cfg.Dwell,
		Interval:   r.e.cfg.SampleInterval,
		Thresholds: r.e.cfg.Thresholds,
		Policy:     r.e.cfg.Policy,
	})
	cancel()

	stage := domain.StageResult{
		Percentage: pct,
		StartedAt:  start.UTC(),
		Duration:   clk.Now().Sub(start),
		Metrics:    metrics.Worst(samples),
		Verdict:    metrics.Evaluate(samples, r.e.cfg.Thresholds, r.e.cfg.Policy),
	}
	switch {
	case err != nil && ctx.Err() != nil:
		stage.Verdict = constants.VerdictFail
		stage.Reason = "stage interrupted"
	case errors.Is(err, context.DeadlineExceeded):
		stage.Verdict = constants.VerdictFail
		stage.Reason = "stage exceeded dwell plus grace"
	case err != nil:
		stage.Verdict = constants.VerdictFail
		stage.Reason = "metrics unavailable"
	case stage.Verdict == constants.VerdictFail:
		stage.Reason = breachReason(samples, r.e.cfg.Thresholds)
	}
	return stage, err
}

// breachReason describes why samples failed.
func breachReason(samples []domain.MetricSample, th metrics.Thresholds) string {
	if len(samples) == 0 {
		return "no metrics samples"
	}
	worst := metrics.Worst(samples)
	if th.MaxErrorRate > 0 && worst.ErrorRate > th.MaxErrorRate {
		return fmt.Sprintf("error rate %.2f%% exceeds %.2f%%", worst.ErrorRate, th.MaxErrorRate)
	}
	return fmt.Sprintf("p95 latency %.0fms exceeds %.0fms", worst.P95LatencyMs, th.MaxP95LatencyMs)
}

func (r *attempt) rollback(ctx context.Context, cause error) error {
	if err := r.enter(constants.StateRollingBack, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	ctx, span := r.e.deps.Tracer.Start(ctx, "rollout.rollback")
	defer span.End()

	inc, err := r.e.deps.Rollback.Rollback(ctx, r.l, rollback.Request{
		ServiceID: r.req.ServiceID,
		From:      r.a.TargetEnv,
		To:        r.a.SourceEnv,
		Reason:    cause.Error(),
		Initiator: r.req.Initiator,
		AttemptID: r.a.ID,
		Revision:  r.req.Revision,
		StartedAt: r.a.StartedAt,
	})
	r.incident = inc
	if err != nil {
		span.RecordError(err)
		if terr := r.enter(constants.StateCriticalEscalation, err.Error()); terr != nil {
			return errors.Join(err, terr)
		}
		return err
	}
	if err := r.enter(constants.StateRolledBack, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// finish writes the terminal incident, archives the attempt and notifies.
// It runs detached from ctx so an interrupted attempt still leaves a record.
func (r *attempt) finish(ctx context.Context, cause error) *domain.Incident {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if cause != nil {
		r.a.Error = cause.Error()
	}

	inc := r.incident
	owned := inc == nil
	if owned {
		inc = r.terminalIncident(cause)
	}

	if !r.req.DryRun {
		deps := r.e.deps
		if deps.Incidents != nil {
			if owned {
				if err := deps.Incidents.Record(fctx, inc); err != nil {
					r.log.Error().Err(err).Msg("failed to record attempt incident")
				}
			}
			if err := deps.Incidents.Archive(fctx, r.a); err != nil {
				r.log.Error().Err(err).Msg("failed to archive attempt")
			}
		}
		if owned && deps.Notifier != nil {
			if err := deps.Notifier.Dispatch(fctx, notify.FromIncident(inc)); err != nil {
				r.log.Error().Err(err).Msg("failed to queue attempt notification")
			}
		}
	}
	if r.e.deps.Observer != nil {
		r.e.deps.Observer.AttemptFinished(r.a)
	}

	ev := r.log.Info()
	if cause != nil {
		ev = r.log.Warn().Err(cause)
	}
	ev.Str("state", r.a.State.String()).
		Str("outcome", r.a.Outcome.String()).
		Int("stages", len(r.a.Stages)).
		Dur("duration", r.a.Duration(r.e.deps.Clock.Now())).
		Msg("attempt finished")
	return inc
}

// terminalIncident describes attempts that ended without a rollback.
func (r *attempt) terminalIncident(cause error) *domain.Incident {
	now := r.e.deps.Clock.Now().UTC()
	inc := &domain.Incident{
		Type:            constants.IncidentDeploymentSucceeded,
		ServiceID:       r.a.ServiceID,
		AttemptID:       r.a.ID,
		Reason:          fmt.Sprintf("%s is live on %s", r.a.Revision, r.a.TargetEnv),
		FromEnv:         r.a.SourceEnv,
		ToEnv:           r.a.TargetEnv,
		Timestamp:       now,
		DurationSeconds: now.Sub(r.a.StartedAt).Seconds(),
		Initiator:       r.a.Initiator,
		Revision:        r.a.Revision,
		Status:          r.a.Outcome,
	}
	if cause != nil {
		inc.Type = constants.IncidentDeploymentFailure
		inc.Reason = fmt.Sprintf("aborted in %s: %v", r.lastActiveState(), cause)
	}
	return inc
}

// lastActiveState is the state the attempt was in before it became terminal.
func (r *attempt) lastActiveState() constants.AttemptState {
	if n := len(r.a.Transitions); n > 0 {
		return r.a.Transitions[n-1].From
	}
	return r.a.State
}
