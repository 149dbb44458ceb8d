package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/mrz1836/cutover/internal/config"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	"github.com/mrz1836/cutover/internal/environment"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/health"
	"github.com/mrz1836/cutover/internal/incident"
	"github.com/mrz1836/cutover/internal/lease"
	"github.com/mrz1836/cutover/internal/logging"
	"github.com/mrz1836/cutover/internal/metrics"
	"github.com/mrz1836/cutover/internal/notify"
	"github.com/mrz1836/cutover/internal/orchestration"
	"github.com/mrz1836/cutover/internal/retry"
	"github.com/mrz1836/cutover/internal/rollback"
	"github.com/mrz1836/cutover/internal/rollout"
	"github.com/mrz1836/cutover/internal/smoke"
	"github.com/mrz1836/cutover/internal/telemetry"
	"github.com/mrz1836/cutover/internal/traffic"
)

// defaultReplicas is used when a service does not configure replicas.
const defaultReplicas = 2

// ServiceOptions tune what CreateServices builds for one command.
type ServiceOptions struct {
	// DryRun swaps the orchestration client for a Simulator and the lease
	// backend for an in-memory one.
	DryRun bool

	// DryRunService and DryRunActive seed the Simulator. An empty
	// DryRunActive falls back to dry_run.assume_active.
	DryRunService string
	DryRunActive  constants.EnvID

	// Interrupt is closed on the first SIGINT/SIGTERM.
	Interrupt <-chan struct{}

	// Metrics overrides the metrics provider. Tests use it.
	Metrics metrics.Provider
}

// Services holds everything a command needs. Close releases it.
type Services struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Client    orchestration.Client
	Leases    lease.Manager
	Store     incident.Store
	Recorder  *incident.Recorder
	Notifier  *notify.Dispatcher
	Telemetry *telemetry.Recorder
	Tracing   *telemetry.Tracing
	Executor  *rollout.Executor

	dryRun  bool
	closers []func(context.Context) error
}

// Close drains notifications, exports telemetry and closes backends.
// Every step runs; the errors are joined.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Notifier != nil {
		errs = append(errs, s.Notifier.Close(ctx))
	}
	if file := s.Config.Telemetry.Textfile; file != "" && !s.dryRun && s.Telemetry != nil {
		errs = append(errs, s.Telemetry.WriteTextfile(file))
	}
	if s.Tracing != nil {
		errs = append(errs, s.Tracing.Shutdown(ctx))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// ServiceFactory builds Services from configuration.
type ServiceFactory struct {
	logger  zerolog.Logger
	version string
}

// NewServiceFactory creates a new ServiceFactory.
func NewServiceFactory(logger zerolog.Logger, version string) *ServiceFactory {
	return &ServiceFactory{logger: logger, version: version}
}

// CreateConfig loads configuration. A broken config file is an error.
func (f *ServiceFactory) CreateConfig(ctx context.Context, explicitPath string) (*config.Config, error) {
	cfg, err := config.Load(f.logger.WithContext(ctx), explicitPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// CreateServices wires every component for cfg.
func (f *ServiceFactory) CreateServices(ctx context.Context, cfg *config.Config, opts ServiceOptions) (_ *Services, err error) {
	s := &Services{Config: cfg, Logger: f.logger, dryRun: opts.DryRun}
	defer func() {
		if err != nil {
			_ = s.Close(context.WithoutCancel(ctx))
		}
	}()

	s.Telemetry = telemetry.NewRecorder()
	traceFile := cfg.Telemetry.TraceFile
	if opts.DryRun {
		traceFile = ""
	}
	if s.Tracing, err = telemetry.NewTracing(traceFile, f.version); err != nil {
		return nil, err
	}

	if opts.DryRun {
		active := opts.DryRunActive
		if active == "" {
			active = constants.EnvID(cfg.DryRun.AssumeActive)
		}
		s.Client = orchestration.NewSimulator(opts.DryRunService, active, f.logger)
		s.Leases = lease.NewMemory()
	} else {
		if s.Client, err = f.CreateClient(cfg); err != nil {
			return nil, err
		}
		if s.Leases, err = f.createLeases(s, cfg); err != nil {
			return nil, err
		}
	}

	if s.Store, err = f.CreateIncidentStore(cfg); err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func(context.Context) error { return s.Store.Close() })
	s.Recorder = incident.NewRecorder(s.Store, nil, f.logger)

	if !opts.DryRun {
		s.Notifier = f.CreateNotifier(cfg, s.Telemetry)
	}

	provider := opts.Metrics
	if provider == nil {
		if provider, err = f.CreateMetricsProvider(cfg); err != nil {
			return nil, err
		}
	}

	s.Executor = f.createExecutor(s, cfg, provider, opts)
	return s, nil
}

// CreateClient builds the orchestration client for cfg. The memory backend
// starts every configured service on blue.
func (f *ServiceFactory) CreateClient(cfg *config.Config) (orchestration.Client, error) {
	policy := infraPolicy(cfg.Orchestration.MaxAttempts)

	if cfg.Orchestration.Backend == config.BackendMemory {
		mem := orchestration.NewMemoryClient()
		for _, id := range lo.Keys(cfg.Services) {
			mem.SeedRouting(id, domain.Split(constants.EnvBlue, 100))
		}
		return orchestration.NewRetrying(mem, policy, f.logger), nil
	}

	clientset, err := orchestration.NewClientset(cfg.Orchestration.Kubeconfig)
	if err != nil {
		return nil, cerrors.NewExitCode2Error(fmt.Errorf("failed to create kubernetes client: %w", err))
	}
	return orchestration.NewRetrying(orchestration.NewKubernetesClient(clientset, Locator(cfg)), policy, f.logger), nil
}

func (f *ServiceFactory) createLeases(s *Services, cfg *config.Config) (lease.Manager, error) {
	switch cfg.Lease.Backend {
	case config.BackendMemory:
		return lease.NewMemory(lease.WithTTL(cfg.Lease.TTL)), nil
	case config.BackendRedis:
		rc := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Lease.Redis.Addr},
			Password: cfg.Lease.Redis.Password,
			DB:       cfg.Lease.Redis.DB,
		})
		s.closers = append(s.closers, func(context.Context) error { return rc.Close() })
		return lease.NewRedis(rc, cfg.Lease.Redis.Prefix, cfg.Lease.TTL), nil
	default:
		dir, err := cfg.StateDir()
		if err != nil {
			return nil, err
		}
		return lease.NewFile(dir)
	}
}

// CreateIncidentStore opens the configured incident store.
func (f *ServiceFactory) CreateIncidentStore(cfg *config.Config) (incident.Store, error) {
	if cfg.Incidents.Backend == config.BackendSQLite {
		p, err := cfg.SQLitePath()
		if err != nil {
			return nil, err
		}
		return incident.NewSQLStore(p)
	}
	dir, err := cfg.StateDir()
	if err != nil {
		return nil, err
	}
	return incident.NewFileStore(dir)
}

// CreateNotifier builds a dispatcher with a webhook sink for every event
// and a pager sink for critical ones. Either is skipped when unconfigured.
func (f *ServiceFactory) CreateNotifier(cfg *config.Config, observer notify.DeliveryObserver) *notify.Dispatcher {
	n := cfg.Notifications
	d := notify.NewDispatcher(f.logger,
		notify.WithPolicy(retry.Policy{
			MaxAttempts:     n.MaxAttempts,
			InitialInterval: n.InitialBackoff,
			MaxInterval:     n.MaxBackoff,
		}),
		notify.WithTimeout(n.Timeout),
		notify.WithObserver(observer),
	)
	client := &http.Client{}
	if n.WebhookURL != "" {
		d.Add(notify.NewWebhookSink(n.WebhookURL, client), constants.SeverityInfo)
		f.logger.Debug().Str("webhook_url", logging.SafeValue("webhook_url", n.WebhookURL)).Msg("notification sink configured")
	}
	if n.PagerRoutingKey != "" {
		d.Add(notify.NewPagerSink(n.PagerURL, n.PagerRoutingKey, client), constants.SeverityCritical)
		f.logger.Debug().Str("pager_url", n.PagerURL).Msg("pager sink configured")
	}
	return d
}

// CreateMetricsProvider builds the metrics provider for cfg.
func (f *ServiceFactory) CreateMetricsProvider(cfg *config.Config) (metrics.Provider, error) {
	if cfg.Metrics.Backend == config.BackendStatic {
		return metrics.NewStaticProvider(), nil
	}
	p, err := metrics.NewPrometheusProvider(metrics.PrometheusConfig{
		Address:        cfg.Metrics.Address,
		ErrorRateQuery: cfg.Metrics.ErrorRateQuery,
		LatencyQuery:   cfg.Metrics.LatencyQuery,
	})
	if err != nil {
		return nil, err
	}
	return metrics.NewRetrying(p, infraPolicy(cfg.Metrics.MaxAttempts), f.logger), nil
}

func (f *ServiceFactory) createExecutor(s *Services, cfg *config.Config, provider metrics.Provider, opts ServiceOptions) *rollout.Executor {
	logger := f.logger
	tc := traffic.NewController(s.Client, s.Leases, logger, traffic.WithObserver(s.Telemetry))
	verifier := health.NewVerifier(logger)
	checks := HealthChecks(cfg)
	hopts := HealthOptions(cfg)
	targets := Addresser(cfg)

	rbOpts := []rollback.Option{
		rollback.WithObserver(s.Telemetry),
		rollback.WithTimeout(cfg.Timeouts.Rollback),
	}
	if !opts.DryRun {
		rbOpts = append(rbOpts, rollback.WithRecorder(s.Recorder), rollback.WithNotifier(s.Notifier))
	}

	deps := rollout.Deps{
		Client:    s.Client,
		Leases:    s.Leases,
		Resolver:  environment.NewResolver(s.Client, nil, logger),
		Traffic:   tc,
		Verifier:  verifier,
		Smoke:     smoke.NewRunner(logger),
		Monitor:   metrics.NewMonitor(provider, cfg.Metrics.Window, logger),
		Rollback:  rollback.NewController(tc.Reverter(), verifier, targets, checks, hopts, logger, rbOpts...),
		Targets:   targets,
		Workloads: Workloads(cfg),
		Incidents: s.Recorder,
		Observer:  s.Telemetry,
		Tracer:    s.Tracing.Tracer(),
		Interrupt: opts.Interrupt,
		Logger:    logger,
	}
	if s.Notifier != nil {
		deps.Notifier = s.Notifier
	}
	return rollout.NewExecutor(ExecutorConfig(cfg), deps)
}

// ExecutorConfig maps configuration onto rollout.Config.
func ExecutorConfig(cfg *config.Config) rollout.Config {
	rc := rollout.Config{
		Stages:         cfg.Rollout.Stages,
		Dwell:          cfg.Rollout.Dwell,
		SampleInterval: cfg.Rollout.SampleInterval,
		Thresholds: metrics.Thresholds{
			MaxErrorRate:    cfg.Rollout.Thresholds.MaxErrorRate,
			MaxP95LatencyMs: cfg.Rollout.Thresholds.MaxP95LatencyMs,
		},
		Policy:              metrics.Policy{ConsecutiveBreaches: cfg.Rollout.BreachPolicy.ConsecutiveBreaches},
		ResolveTimeout:      cfg.Timeouts.Resolve,
		DeployReadyTimeout:  cfg.Timeouts.DeployReady,
		StageGrace:          cfg.Timeouts.StageGrace,
		PollInterval:        cfg.Orchestration.PollInterval,
		HealthChecks:        HealthChecks(cfg),
		HealthOptions:       HealthOptions(cfg),
		SmokeAssertions:     SmokeAssertions(cfg),
		PerAssertionTimeout: cfg.Smoke.PerAssertionTimeout,
	}
	if cfg.Lease.TTL > 0 {
		rc.LeaseRenewInterval = cfg.Lease.TTL / 3
	}
	return rc
}

// HealthChecks maps configured checks.
func HealthChecks(cfg *config.Config) []health.Check {
	return lo.Map(cfg.Health.Checks, func(c config.CheckConfig, _ int) health.Check {
		return health.Check{Endpoint: c.Endpoint, Method: c.Method, ExpectedStatus: c.ExpectedStatus}
	})
}

// HealthOptions maps configured gate limits.
func HealthOptions(cfg *config.Config) health.Options {
	h := cfg.Health
	return health.Options{
		PerRequestTimeout: h.PerRequestTimeout,
		MaxRetries:        h.MaxRetries,
		RetryDelay:        h.RetryDelay,
		OverallTimeout:    h.OverallTimeout,
		Parallelism:       h.Parallelism,
	}
}

// SmokeAssertions maps configured assertions, keeping their order.
func SmokeAssertions(cfg *config.Config) []smoke.Assertion {
	return lo.Map(cfg.Smoke.Assertions, func(a config.AssertionConfig, _ int) smoke.Assertion {
		return smoke.Assertion{
			Name:           a.Name,
			Method:         a.Method,
			Path:           a.Path,
			Headers:        a.Headers,
			Body:           a.Body,
			ExpectedStatus: a.ExpectedStatus,
			BodyContains:   a.BodyContains,
		}
	})
}

func lookupService(cfg *config.Config, serviceID string) (config.ServiceConfig, error) {
	svc, ok := cfg.Service(serviceID)
	if !ok {
		return config.ServiceConfig{}, cerrors.Mark(
			fmt.Errorf("service '%s' is not configured: %w", serviceID, cerrors.ErrUnknownService), cerrors.ErrValidation)
	}
	return svc, nil
}

// Locator places services in the orchestrator from configuration.
func Locator(cfg *config.Config) orchestration.Locator {
	return func(serviceID string) (orchestration.Placement, error) {
		svc, err := lookupService(cfg, serviceID)
		if err != nil {
			return orchestration.Placement{}, err
		}
		ns := svc.Namespace
		if ns == "" {
			ns = "default"
		}
		return orchestration.Placement{
			Namespace:     ns,
			RoutingObject: svc.RoutingObjectName(serviceID),
			Workloads: map[constants.EnvID]string{
				constants.EnvBlue:  svc.WorkloadName(serviceID, constants.EnvBlue),
				constants.EnvGreen: svc.WorkloadName(serviceID, constants.EnvGreen),
			},
		}, nil
	}
}

// Addresser returns probe targets from services.<id>.addresses.
func Addresser(cfg *config.Config) domain.Addresser {
	return func(serviceID string, env constants.EnvID) (domain.Target, error) {
		svc, err := lookupService(cfg, serviceID)
		if err != nil {
			return domain.Target{}, err
		}
		addr := svc.Address(env)
		if addr == "" {
			return domain.Target{}, fmt.Errorf("service '%s' has no %s address: %w", serviceID, env, cerrors.ErrEmptyValue)
		}
		return domain.Target{ServiceID: serviceID, Env: env, BaseURL: addr}, nil
	}
}

// Workloads builds workload specs from configuration.
func Workloads(cfg *config.Config) rollout.WorkloadFunc {
	return func(serviceID string, env constants.EnvID, revision string) (domain.WorkloadSpec, error) {
		svc, err := lookupService(cfg, serviceID)
		if err != nil {
			return domain.WorkloadSpec{}, err
		}
		replicas := svc.Replicas
		if replicas == 0 {
			replicas = defaultReplicas
		}
		ns := svc.Namespace
		if ns == "" {
			ns = "default"
		}
		return domain.WorkloadSpec{
			ServiceID: serviceID,
			Env:       env,
			Namespace: ns,
			Name:      svc.WorkloadName(serviceID, env),
			Image:     ImageFor(svc.Image, revision),
			Revision:  revision,
			Replicas:  replicas,
		}, nil
	}
}

// ImageFor returns the image to deploy for revision. A revision that is
// already an image reference is used as is; otherwise it replaces the tag of
// the configured base image.
//
//	ImageFor("registry/api:1.0", "1.1")      // registry/api:1.1
//	ImageFor("registry/api", "ghcr.io/x:2")  // ghcr.io/x:2
func ImageFor(base, revision string) string {
	if base == "" || strings.ContainsAny(revision, "/:@") {
		return revision
	}
	repo := base
	if i := strings.LastIndex(base, ":"); i > strings.LastIndex(base, "/") {
		repo = base[:i]
	}
	return repo + ":" + revision
}

func infraPolicy(attempts int) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = attempts
	return p
}

// initiator names the operator running the command.
func initiator(explicit string) string {
	if explicit != "" {
		return explicit
	}
	name := os.Getenv("USER")
	if name == "" {
		name = "unknown"
	}
	return "operator:" + name
}

// closeTimeout bounds draining notifications and closing backends.
const closeTimeout = 10 * time.Second

// openServices loads configuration and wires services for one command.
func openServices(ctx context.Context, flags *GlobalFlags, info BuildInfo, opts ServiceOptions) (*Services, error) {
	factory := NewServiceFactory(GetLogger(), info.Version)
	cfg, err := factory.CreateConfig(ctx, flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	return factory.CreateServices(ctx, cfg, opts)
}

// closeServices closes s without letting a cancelled command context cut
// notification delivery short.
func closeServices(ctx context.Context, s *Services) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		s.Logger.Warn().Err(err).Msg("failed to close services cleanly")
	}
}
