package config

import (
	"github.com/spf13/viper"

	"github.com/mrz1836/cutover/internal/constants"
)

// Backend names.
const (
	BackendKubernetes = "kubernetes"
	BackendMemory     = "memory"
	BackendPrometheus = "prometheus"
	BackendStatic     = "static"
	BackendFile       = "file"
	BackendRedis      = "redis"
	BackendSQLite     = "sqlite"
)

// DefaultConfig returns a Config holding the built-in defaults.
// These are the base layer that files, environment and flags override.
func DefaultConfig() *Config {
	return &Config{
		Rollout: RolloutConfig{
			Stages:         constants.DefaultStages(),
			Dwell:          constants.DefaultDwell,
			SampleInterval: constants.DefaultSampleInterval,
			Thresholds: ThresholdsConfig{
				MaxErrorRate:    constants.DefaultMaxErrorRate,
				MaxP95LatencyMs: constants.DefaultMaxP95LatencyMs,
			},
			BreachPolicy: BreachPolicyConfig{
				// One breaching sample fails the stage. Raise to tolerate transient spikes.
				ConsecutiveBreaches: constants.DefaultConsecutiveBreaches,
			},
		},
		Timeouts: TimeoutsConfig{
			Resolve:     constants.DefaultResolveTimeout,
			DeployReady: constants.DefaultDeployReadyTimeout,
			StageGrace:  constants.DefaultStageGrace,
			Rollback:    constants.DefaultRollbackTimeout,
		},
		Health: HealthConfig{
			PerRequestTimeout: constants.DefaultPerRequestTimeout,
			MaxRetries:        constants.DefaultHealthMaxRetries,
			RetryDelay:        constants.DefaultHealthRetryDelay,
			OverallTimeout:    constants.DefaultHealthOverall,
			Parallelism:       constants.DefaultHealthParallelism,
			Checks: []CheckConfig{
				{Endpoint: "/healthz", Method: "GET", ExpectedStatus: 200},
			},
		},
		Smoke: SmokeConfig{
			PerAssertionTimeout: constants.DefaultPerAssertionTimeout,
		},
		Services: map[string]ServiceConfig{},
		Orchestration: OrchestrationConfig{
			Backend:      BackendKubernetes,
			PollInterval: constants.DefaultStatusPollInterval,
			MaxAttempts:  constants.DefaultInfraMaxAttempts,
		},
		Metrics: MetricsConfig{
			Backend:        BackendPrometheus,
			Address:        "http://localhost:9090",
			ErrorRateQuery: constants.DefaultErrorRateQuery,
			LatencyQuery:   constants.DefaultLatencyQuery,
			Window:         constants.DefaultMetricsWindow,
			MaxAttempts:    constants.DefaultInfraMaxAttempts,
		},
		Lease: LeaseConfig{
			Backend: BackendFile,
			TTL:     constants.DefaultLeaseTTL,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: constants.DefaultRedisLeasePrefix,
			},
		},
		Incidents: IncidentsConfig{
			Backend: BackendFile,
		},
		Notifications: NotificationsConfig{
			PagerURL:       constants.DefaultPagerURL,
			Timeout:        constants.DefaultNotifyTimeout,
			MaxAttempts:    constants.DefaultNotifyMaxAttempts,
			InitialBackoff: constants.DefaultNotifyInitialBackoff,
			MaxBackoff:     constants.DefaultNotifyMaxBackoff,
		},
		DryRun: DryRunConfig{
			AssumeActive: constants.EnvBlue.String(),
		},
	}
}

// setDefaults registers every default with viper so that environment
// variables can override keys that never appear in a file.
// IMPORTANT: keys must match the mapstructure tags.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("rollout.stages", d.Rollout.Stages)
	v.SetDefault("rollout.dwell", d.Rollout.Dwell)
	v.SetDefault("rollout.sample_interval", d.Rollout.SampleInterval)
	v.SetDefault("rollout.thresholds.max_error_rate", d.Rollout.Thresholds.MaxErrorRate)
	v.SetDefault("rollout.thresholds.max_p95_latency_ms", d.Rollout.Thresholds.MaxP95LatencyMs)
	v.SetDefault("rollout.breach_policy.consecutive_breaches", d.Rollout.BreachPolicy.ConsecutiveBreaches)

	v.SetDefault("timeouts.resolve", d.Timeouts.Resolve)
	v.SetDefault("timeouts.deploy_ready", d.Timeouts.DeployReady)
	v.SetDefault("timeouts.stage_grace", d.Timeouts.StageGrace)
	v.SetDefault("timeouts.rollback", d.Timeouts.Rollback)

	v.SetDefault("health.per_request_timeout", d.Health.PerRequestTimeout)
	v.SetDefault("health.max_retries", d.Health.MaxRetries)
	v.SetDefault("health.retry_delay", d.Health.RetryDelay)
	v.SetDefault("health.overall_timeout", d.Health.OverallTimeout)
	v.SetDefault("health.parallelism", d.Health.Parallelism)
	v.SetDefault("health.checks", []map[string]any{
		{"endpoint": "/healthz", "method": "GET", "expected_status": 200},
	})

	v.SetDefault("smoke.per_assertion_timeout", d.Smoke.PerAssertionTimeout)

	v.SetDefault("orchestration.backend", d.Orchestration.Backend)
	v.SetDefault("orchestration.kubeconfig", "")
	v.SetDefault("orchestration.poll_interval", d.Orchestration.PollInterval)
	v.SetDefault("orchestration.max_attempts", d.Orchestration.MaxAttempts)

	v.SetDefault("metrics.backend", d.Metrics.Backend)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.error_rate_query", d.Metrics.ErrorRateQuery)
	v.SetDefault("metrics.latency_query", d.Metrics.LatencyQuery)
	v.SetDefault("metrics.window", d.Metrics.Window)
	v.SetDefault("metrics.max_attempts", d.Metrics.MaxAttempts)

	v.SetDefault("lease.backend", d.Lease.Backend)
	v.SetDefault("lease.ttl", d.Lease.TTL)
	v.SetDefault("lease.redis.addr", d.Lease.Redis.Addr)
	v.SetDefault("lease.redis.password", "")
	v.SetDefault("lease.redis.db", 0)
	v.SetDefault("lease.redis.prefix", d.Lease.Redis.Prefix)

	v.SetDefault("incidents.backend", d.Incidents.Backend)
	v.SetDefault("incidents.dir", "")
	v.SetDefault("incidents.sqlite_path", "")

	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.pager_url", d.Notifications.PagerURL)
	v.SetDefault("notifications.pager_routing_key", "")
	v.SetDefault("notifications.timeout", d.Notifications.Timeout)
	v.SetDefault("notifications.max_attempts", d.Notifications.MaxAttempts)
	v.SetDefault("notifications.initial_backoff", d.Notifications.InitialBackoff)
	v.SetDefault("notifications.max_backoff", d.Notifications.MaxBackoff)

	v.SetDefault("telemetry.textfile", "")
	v.SetDefault("telemetry.trace_file", "")

	v.SetDefault("dry_run.assume_active", d.DryRun.AssumeActive)
}
