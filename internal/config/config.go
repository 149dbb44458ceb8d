// Package config provides layered configuration for cutover.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. CLI flags
//  2. Environment variables (CUTOVER_* prefix)
//  3. An explicit file passed with --config, or the project config (.cutover/config.yaml)
//  4. Global config (~/.cutover/config.yaml)
//  5. Built-in defaults
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import (
	"time"

	"github.com/mrz1836/cutover/internal/constants"
)

// Config is the root configuration structure.
type Config struct {
	// Rollout controls stage percentages, dwell and breach thresholds.
	Rollout RolloutConfig `yaml:"rollout" mapstructure:"rollout"`

	// Timeouts bound every blocking step of an attempt.
	Timeouts TimeoutsConfig `yaml:"timeouts" mapstructure:"timeouts"`

	// Health configures the pre-shift and post-rollback health gate.
	Health HealthConfig `yaml:"health" mapstructure:"health"`

	// Smoke configures functional assertions run against the target before shifting.
	Smoke SmokeConfig `yaml:"smoke" mapstructure:"smoke"`

	// Services describes each managed service, keyed by service id.
	Services map[string]ServiceConfig `yaml:"services" mapstructure:"services"`

	// Orchestration selects and configures the workload orchestration backend.
	Orchestration OrchestrationConfig `yaml:"orchestration" mapstructure:"orchestration"`

	// Metrics selects and configures the metrics backend.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// Lease selects the per-service lease backend.
	Lease LeaseConfig `yaml:"lease" mapstructure:"lease"`

	// Incidents selects the incident store.
	Incidents IncidentsConfig `yaml:"incidents" mapstructure:"incidents"`

	// Notifications configures webhook and paging sinks.
	Notifications NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`

	// Telemetry configures controller metrics and trace export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DryRun configures the dry-run simulator.
	DryRun DryRunConfig `yaml:"dry_run" mapstructure:"dry_run"`
}

// RolloutConfig controls the traffic shifting loop.
type RolloutConfig struct {
	// Stages is the ascending list of candidate percentages. The last stage must be 100.
	// Default: [1, 5, 10, 25, 50, 75, 100]
	Stages []int `yaml:"stages" mapstructure:"stages"`

	// Dwell is how long each stage is held and sampled.
	// Default: 5 minutes
	Dwell time.Duration `yaml:"dwell" mapstructure:"dwell"`

	// SampleInterval is the metrics sampling period within a stage.
	// Default: 30 seconds
	SampleInterval time.Duration `yaml:"sample_interval" mapstructure:"sample_interval"`

	Thresholds ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`

	BreachPolicy BreachPolicyConfig `yaml:"breach_policy" mapstructure:"breach_policy"`
}

// ThresholdsConfig holds the hard limits a stage must stay under.
type ThresholdsConfig struct {
	// MaxErrorRate is in percent. Default: 1.0
	MaxErrorRate float64 `yaml:"max_error_rate" mapstructure:"max_error_rate"`

	// MaxP95LatencyMs is in milliseconds. Default: 1000
	MaxP95LatencyMs float64 `yaml:"max_p95_latency_ms" mapstructure:"max_p95_latency_ms"`
}

// BreachPolicyConfig decides how many breaching samples fail a stage.
type BreachPolicyConfig struct {
	// ConsecutiveBreaches is the number of breaching samples in a row that
	// fails a stage. 1 fails fast on the first breach.
	// Default: 1
	ConsecutiveBreaches int `yaml:"consecutive_breaches" mapstructure:"consecutive_breaches"`
}

// TimeoutsConfig bounds each blocking step.
type TimeoutsConfig struct {
	Resolve     time.Duration `yaml:"resolve" mapstructure:"resolve"`
	DeployReady time.Duration `yaml:"deploy_ready" mapstructure:"deploy_ready"`

	// StageGrace is added to the dwell to form each stage's timeout.
	StageGrace time.Duration `yaml:"stage_grace" mapstructure:"stage_grace"`

	// Rollback bounds the rollback including its re-verification.
	Rollback time.Duration `yaml:"rollback" mapstructure:"rollback"`
}

// HealthConfig configures the health gate.
type HealthConfig struct {
	PerRequestTimeout time.Duration `yaml:"per_request_timeout" mapstructure:"per_request_timeout"`

	// MaxRetries is the number of fixed-delay attempts per check. Default: 3
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`

	// OverallTimeout bounds the whole gate regardless of per-request timeouts.
	OverallTimeout time.Duration `yaml:"overall_timeout" mapstructure:"overall_timeout"`

	// Parallelism bounds how many checks run at once. Default: 4
	Parallelism int `yaml:"parallelism" mapstructure:"parallelism"`

	// Checks are the endpoints probed on each environment.
	Checks []CheckConfig `yaml:"checks" mapstructure:"checks"`
}

// CheckConfig is one health endpoint.
type CheckConfig struct {
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	Method         string `yaml:"method" mapstructure:"method"`
	ExpectedStatus int    `yaml:"expected_status" mapstructure:"expected_status"`
}

// SmokeConfig configures the smoke test gate.
type SmokeConfig struct {
	PerAssertionTimeout time.Duration     `yaml:"per_assertion_timeout" mapstructure:"per_assertion_timeout"`
	Assertions          []AssertionConfig `yaml:"assertions" mapstructure:"assertions"`
}

// AssertionConfig is one ordered smoke assertion.
type AssertionConfig struct {
	Name           string            `yaml:"name" mapstructure:"name"`
	Method         string            `yaml:"method" mapstructure:"method"`
	Path           string            `yaml:"path" mapstructure:"path"`
	Headers        map[string]string `yaml:"headers" mapstructure:"headers"`
	Body           string            `yaml:"body" mapstructure:"body"`
	ExpectedStatus int               `yaml:"expected_status" mapstructure:"expected_status"`
	BodyContains   string            `yaml:"body_contains" mapstructure:"body_contains"`
}

// ServiceConfig describes one managed service.
type ServiceConfig struct {
	// Namespace is the orchestration namespace. Default: "default"
	Namespace string `yaml:"namespace" mapstructure:"namespace"`

	// RoutingObject names the routing object. Default: "<service>-routing"
	RoutingObject string `yaml:"routing_object" mapstructure:"routing_object"`

	// Image is the default image to deploy when a run does not name a revision.
	Image string `yaml:"image" mapstructure:"image"`

	// Replicas is the desired replica count per environment. Default: 2
	Replicas int32 `yaml:"replicas" mapstructure:"replicas"`

	// Workloads maps blue/green to workload names. Default: "<service>-<env>"
	Workloads map[string]string `yaml:"workloads" mapstructure:"workloads"`

	// Addresses maps blue/green to the environment's internal base URL.
	Addresses map[string]string `yaml:"addresses" mapstructure:"addresses"`
}

// OrchestrationConfig selects the workload orchestration backend.
type OrchestrationConfig struct {
	// Backend is "kubernetes" or "memory". Default: "kubernetes"
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Kubeconfig is an explicit kubeconfig path. Empty uses in-cluster config,
	// then $KUBECONFIG, then ~/.kube/config.
	Kubeconfig string `yaml:"kubeconfig" mapstructure:"kubeconfig"`

	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// MaxAttempts bounds retries of a failing API call. Default: 3
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is "prometheus" or "static". Default: "prometheus"
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Address is the Prometheus base URL.
	Address string `yaml:"address" mapstructure:"address"`

	// ErrorRateQuery and LatencyQuery are templates rendered with
	// .Service, .Environment and .Window.
	ErrorRateQuery string `yaml:"error_rate_query" mapstructure:"error_rate_query"`
	LatencyQuery   string `yaml:"latency_query" mapstructure:"latency_query"`

	// Window is the range-vector window used by the queries. Default: 1m
	Window time.Duration `yaml:"window" mapstructure:"window"`

	// MaxAttempts bounds retries of a failing query. Default: 3
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// LeaseConfig selects the lease backend.
type LeaseConfig struct {
	// Backend is "file", "redis" or "memory". Default: "file"
	Backend string `yaml:"backend" mapstructure:"backend"`

	// TTL is the lease lifetime for expiring backends. Default: 2m
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`

	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig configures the redis lease backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// IncidentsConfig selects the incident store.
type IncidentsConfig struct {
	// Backend is "file" or "sqlite". Default: "file"
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Dir overrides the state directory. Default: ~/.cutover
	Dir string `yaml:"dir" mapstructure:"dir"`

	// SQLitePath overrides the sqlite database path. Default: <dir>/incidents.db
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// NotificationsConfig configures outbound notification sinks.
// A sink is enabled when its URL (webhook) or routing key (pager) is set.
type NotificationsConfig struct {
	WebhookURL      string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	PagerURL        string        `yaml:"pager_url" mapstructure:"pager_url"`
	PagerRoutingKey string        `yaml:"pager_routing_key" mapstructure:"pager_routing_key"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// TelemetryConfig configures controller self-observability.
type TelemetryConfig struct {
	// Textfile, when set, receives the controller's metrics in Prometheus
	// text format after every command (node exporter textfile collector).
	Textfile string `yaml:"textfile" mapstructure:"textfile"`

	// TraceFile, when set, receives OpenTelemetry spans as JSON lines.
	TraceFile string `yaml:"trace_file" mapstructure:"trace_file"`
}

// DryRunConfig configures the dry-run simulator.
type DryRunConfig struct {
	// AssumeActive is the environment treated as active when a dry run does
	// not name a target. Default: "blue"
	AssumeActive string `yaml:"assume_active" mapstructure:"assume_active"`
}

// Service returns the configuration for id and whether it exists.
func (c *Config) Service(id string) (ServiceConfig, bool) {
	svc, ok := c.Services[id]
	return svc, ok
}

// WorkloadName returns the workload backing env for service id.
func (s ServiceConfig) WorkloadName(id string, env constants.EnvID) string {
	if name := s.Workloads[env.String()]; name != "" {
		return name
	}
	return id + "-" + env.String()
}

// RoutingObjectName returns the routing object name for service id.
func (s ServiceConfig) RoutingObjectName(id string) string {
	if s.RoutingObject != "" {
		return s.RoutingObject
	}
	return id + constants.RoutingObjectSuffix
}

// Address returns the internal base URL of env.
func (s ServiceConfig) Address(env constants.EnvID) string {
	return s.Addresses[env.String()]
}
