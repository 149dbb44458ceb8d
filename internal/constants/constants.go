// Package constants provides centralized constant values used throughout cutover.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// Directory and file names used for local state.
const (
	// CutoverHome is the hidden directory where cutover stores its data.
	// It is created in the user's home directory.
	CutoverHome = ".cutover"

	// ConfigFileName is the configuration file inside CutoverHome.
	ConfigFileName = "config.yaml"

	// LogsDir holds the rotating log file.
	LogsDir = "logs"

	// LogFileName is the rotating log file name.
	LogFileName = "cutover.log"

	// IncidentsDir holds one JSON file per incident.
	IncidentsDir = "incidents"

	// AttemptsDir holds one JSON file per finalized deployment attempt.
	AttemptsDir = "attempts"

	// LeasesDir holds lease lock files and abort markers.
	LeasesDir = "leases"

	// IncidentDBFile is the default sqlite database for the sql incident store.
	IncidentDBFile = "incidents.db"

	// HomeEnv overrides the CutoverHome location for logs.
	HomeEnv = "CUTOVER_HOME"
)

// Log rotation settings for the CLI log file.
const (
	LogMaxSizeMB  = 10
	LogMaxBackups = 5
	LogMaxAgeDays = 30
	LogCompress   = true
)

// Default rollout settings.
const (
	// DefaultDwell is how long each stage holds before it is evaluated.
	DefaultDwell = 5 * time.Minute

	// DefaultSampleInterval is the metrics sampling period within a stage.
	DefaultSampleInterval = 30 * time.Second

	// DefaultMaxErrorRate is the hard error-rate threshold in percent.
	DefaultMaxErrorRate = 1.0

	// DefaultMaxP95LatencyMs is the hard p95 latency threshold in milliseconds.
	DefaultMaxP95LatencyMs = 1000.0

	// DefaultConsecutiveBreaches is the number of breaching samples in a row
	// that fails a stage. 1 means fail fast on a single sample.
	DefaultConsecutiveBreaches = 1
)

// DefaultStages returns the default ascending stage percentages.
func DefaultStages() []int {
	return []int{1, 5, 10, 25, 50, 75, 100}
}

// Timeouts for each blocking step.
const (
	DefaultResolveTimeout     = 30 * time.Second
	DefaultDeployReadyTimeout = 10 * time.Minute
	DefaultStageGrace         = 1 * time.Minute
	DefaultRollbackTimeout    = 5 * time.Minute
	DefaultStatusPollInterval = 5 * time.Second
)

// Health gate defaults.
const (
	DefaultPerRequestTimeout   = 5 * time.Second
	DefaultHealthMaxRetries    = 3
	DefaultHealthRetryDelay    = 5 * time.Second
	DefaultHealthOverall       = 2 * time.Minute
	DefaultHealthParallelism   = 4
	DefaultPerAssertionTimeout = 10 * time.Second
)

// Infrastructure retry defaults.
const (
	// DefaultInfraMaxAttempts bounds retries against the orchestration and metrics APIs.
	DefaultInfraMaxAttempts = 3

	// DefaultInfraInitialBackoff is the first retry delay for infrastructure calls.
	DefaultInfraInitialBackoff = 500 * time.Millisecond

	// DefaultInfraMaxBackoff caps infrastructure retry delays.
	DefaultInfraMaxBackoff = 10 * time.Second
)

// Lease defaults.
const (
	DefaultLeaseTTL = 2 * time.Minute

	// LockTimeout is the maximum time to wait for a file lock.
	LockTimeout = 5 * time.Second

	// LockPollInterval is the file lock polling period.
	LockPollInterval = 50 * time.Millisecond

	DefaultRedisLeasePrefix = "cutover:lease:"
)

// Notification defaults.
const (
	DefaultNotifyTimeout        = 10 * time.Second
	DefaultNotifyMaxAttempts    = 5
	DefaultNotifyInitialBackoff = 1 * time.Second
	DefaultNotifyMaxBackoff     = 30 * time.Second
	DefaultPagerURL             = "https://events.pagerduty.com/v2/enqueue"
	NotificationSource          = "cutover"
)

// Metrics backend defaults. Queries are Go templates rendered with
// .Service, .Environment and .Window.
const (
	DefaultMetricsWindow  = time.Minute
	DefaultErrorRateQuery = `100 * sum(rate(http_requests_total{service="{{.Service}}",env="{{.Environment}}",code=~"5.."}[{{.Window}}])) / sum(rate(http_requests_total{service="{{.Service}}",env="{{.Environment}}"}[{{.Window}}]))`
	DefaultLatencyQuery   = `1000 * histogram_quantile(0.95, sum by (le) (rate(http_request_duration_seconds_bucket{service="{{.Service}}",env="{{.Environment}}"}[{{.Window}}])))`
)

// Routing object layout.
const (
	// RoutingWeightKeyPrefix prefixes the weight keys inside the routing object.
	RoutingWeightKeyPrefix = "weight."

	// RoutingObjectSuffix is appended to the service id for the default routing object name.
	RoutingObjectSuffix = "-routing"

	// LabelService and LabelEnvironment label managed workloads.
	LabelService     = "cutover.io/service"
	LabelEnvironment = "cutover.io/environment"

	// AnnotationRevision records the deployed revision on a workload.
	AnnotationRevision = "cutover.io/revision"
)

// AttemptSchemaVersion is the schema version written into archived attempts.
const AttemptSchemaVersion = 1
