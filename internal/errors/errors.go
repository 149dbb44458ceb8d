// Package errors provides centralized error handling for cutover.
//
// Sentinel errors classify failures for the rollout state machine and for the
// CLI exit code mapping. All of them can be checked with errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Failure classes. Every error surfaced by a rollout component wraps exactly
// one of these so the executor can pick the correct failure branch.
var (
	// ErrValidation indicates bad configuration or a bad target detected
	// before any mutation. Recovery is to abort with zero side effects.
	ErrValidation = errors.New("validation error")

	// ErrGateFailure indicates a health or smoke gate did not pass.
	ErrGateFailure = errors.New("gate failure")

	// ErrThresholdBreach indicates sampled metrics exceeded a hard threshold
	// while traffic was split.
	ErrThresholdBreach = errors.New("threshold breach")

	// ErrInfrastructure indicates the orchestration or metrics API could not
	// be reached after the bounded number of attempts.
	ErrInfrastructure = errors.New("infrastructure error")

	// ErrCriticalEscalation indicates the rollback target also failed
	// verification. Automation stops and operators are paged.
	ErrCriticalEscalation = errors.New("critical escalation")

	// ErrConflict indicates a mutation was attempted without holding the
	// service lease, or the lease is held by another controller.
	ErrConflict = errors.New("conflict")
)

// Specific errors. Callers attach a failure class to them with Mark;
// every one of them also works on its own with errors.Is().
var (
	// ErrInvalidTransition indicates an invalid attempt state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrEmptyValue indicates a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrConfigNil indicates a nil configuration was passed.
	ErrConfigNil = errors.New("config cannot be nil")

	// ErrUnknownService indicates the service is not present in configuration.
	ErrUnknownService = errors.New("unknown service")

	// ErrUnknownEnvironment indicates an environment id other than blue or green.
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrInvalidWeights indicates a weight map that does not name exactly
	// both environments, has a value outside 0..100, or does not sum to 100.
	ErrInvalidWeights = errors.New("invalid traffic weights")

	// ErrWeightDecrease indicates a forward shift tried to lower the
	// candidate's weight while a shift session was open.
	ErrWeightDecrease = errors.New("candidate weight decrease not allowed")

	// ErrAmbiguousRouting indicates live routing has no single environment at
	// weight 100, so the active environment cannot be determined.
	ErrAmbiguousRouting = errors.New("active environment cannot be determined")

	// ErrSnapshotStale indicates live routing changed since the attempt's
	// snapshot was taken.
	ErrSnapshotStale = errors.New("routing snapshot is stale")

	// ErrAlreadyActive indicates the requested target environment is already
	// serving all traffic.
	ErrAlreadyActive = errors.New("target environment is already active")

	// ErrWorkloadNotReady indicates the target workload did not become ready
	// within its wait timeout.
	ErrWorkloadNotReady = errors.New("workload not ready")

	// ErrHealthCheckFailed indicates at least one health check exhausted its retries.
	ErrHealthCheckFailed = errors.New("health check failed")

	// ErrHealthGateTimeout indicates the health gate overall timeout expired.
	ErrHealthGateTimeout = errors.New("health gate timed out")

	// ErrSmokeTestFailed indicates a smoke assertion failed.
	ErrSmokeTestFailed = errors.New("smoke test failed")

	// ErrMetricsQuery indicates a metrics backend query failed.
	ErrMetricsQuery = errors.New("metrics query failed")

	// ErrNoMetricsData indicates the metrics backend returned no series.
	ErrNoMetricsData = errors.New("no metrics data")

	// ErrLeaseHeld indicates the service lease is held by another holder.
	ErrLeaseHeld = errors.New("lease held by another controller")

	// ErrLeaseNotHeld indicates the caller's lease is missing, expired, or superseded.
	ErrLeaseNotHeld = errors.New("lease not held")

	// ErrLockTimeout indicates a file lock could not be acquired in time.
	ErrLockTimeout = errors.New("lock acquisition timeout")

	// ErrAbortRequested indicates an operator requested the attempt to stop.
	ErrAbortRequested = errors.New("abort requested by operator")

	// ErrServiceFrozen indicates the service is frozen after a critical
	// escalation and automation refuses to act without force.
	ErrServiceFrozen = errors.New("service frozen after critical escalation")

	// ErrIncidentExists indicates an incident with the same id was already committed.
	ErrIncidentExists = errors.New("incident already recorded")

	// ErrIncidentNotFound indicates the requested incident does not exist.
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrAttemptNotFound indicates the requested attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")

	// ErrNotificationFailed indicates a notification sink rejected a delivery.
	ErrNotificationFailed = errors.New("notification delivery failed")

	// ErrDispatcherClosed indicates an event was dispatched after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")

	// ErrRoutingObjectMissing indicates the routing object for a service does not exist.
	ErrRoutingObjectMissing = errors.New("routing object not found")

	// ErrInvalidOutputFormat indicates an unsupported --output value.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrInvalidArgument indicates a bad command-line argument.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ExitCode2Error wraps an error to indicate exit code 2 should be used.
type ExitCode2Error struct {
	Err error
}

// NewExitCode2Error wraps an error to indicate exit code 2.
func NewExitCode2Error(err error) *ExitCode2Error {
	return &ExitCode2Error{Err: err}
}

// Error implements the error interface.
func (e *ExitCode2Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitCode2Error) Unwrap() error {
	return e.Err
}

// IsExitCode2Error checks if an error should result in exit code 2.
func IsExitCode2Error(err error) bool {
	var e *ExitCode2Error
	return errors.As(err, &e)
}

// Exit codes returned by the CLI.
const (
	// ExitSuccess means the command finished and nothing is left to do.
	ExitSuccess = 0
	// ExitGateFailure covers gate, validation, conflict and rolled-back outcomes.
	ExitGateFailure = 1
	// ExitFatal covers resolve failures, exhausted infrastructure retries and
	// critical escalation. These require an operator.
	ExitFatal = 2
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case IsExitCode2Error(err),
		errors.Is(err, ErrCriticalEscalation),
		errors.Is(err, ErrInfrastructure),
		errors.Is(err, ErrServiceFrozen):
		return ExitFatal
	default:
		return ExitGateFailure
	}
}

// Class returns the failure class sentinel wrapped by err, or nil when err
// carries none of them.
func Class(err error) error {
	for _, class := range []error{
		ErrCriticalEscalation,
		ErrInfrastructure,
		ErrThresholdBreach,
		ErrGateFailure,
		ErrConflict,
		ErrValidation,
	} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}
