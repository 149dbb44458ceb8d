package constants

// EnvID identifies one of the two blue/green environments.
type EnvID string

// Environment ids.
const (
	EnvBlue  EnvID = "blue"
	EnvGreen EnvID = "green"
)

// AllEnvs returns both environments in a stable order.
func AllEnvs() []EnvID {
	return []EnvID{EnvBlue, EnvGreen}
}

// Other returns the opposite environment. Unknown ids return "".
func (e EnvID) Other() EnvID {
	switch e {
	case EnvBlue:
		return EnvGreen
	case EnvGreen:
		return EnvBlue
	default:
		return ""
	}
}

// Valid reports whether e is blue or green.
func (e EnvID) Valid() bool {
	return e == EnvBlue || e == EnvGreen
}

// String returns the string representation of the environment.
func (e EnvID) String() string {
	return string(e)
}

// AttemptState represents a state of the deployment attempt state machine.
// Values use snake_case for JSON serialization.
//
//	Idle → ResolvingEnvironment → Deploying → HealthGating → SmokeTesting → TrafficShifting → Completed
//	ResolvingEnvironment, Deploying, HealthGating, SmokeTesting → Aborted
//	TrafficShifting → RollingBack → RolledBack | CriticalEscalation
type AttemptState string

// Attempt states.
const (
	StateIdle                 AttemptState = "idle"
	StateResolvingEnvironment AttemptState = "resolving_environment"
	StateDeploying            AttemptState = "deploying"
	StateHealthGating         AttemptState = "health_gating"
	StateSmokeTesting         AttemptState = "smoke_testing"
	StateTrafficShifting      AttemptState = "traffic_shifting"
	StateCompleted            AttemptState = "completed"

	// StateAborted is reached from any pre-shift failure. Traffic is untouched.
	StateAborted AttemptState = "aborted"

	StateRollingBack AttemptState = "rolling_back"
	StateRolledBack  AttemptState = "rolled_back"

	// StateCriticalEscalation means the rollback target also failed
	// verification. No further automated action is taken.
	StateCriticalEscalation AttemptState = "critical_escalation"
)

// String returns the string representation of the state.
func (s AttemptState) String() string {
	return string(s)
}

// Outcome is the final result of a deployment attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeFailed     Outcome = "failed"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// Verdict is the pass/fail result of a stage or evaluation.
type Verdict string

// Verdicts.
const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	return string(v)
}

// HealthStatus is the last verified health of an environment.
type HealthStatus string

// Health statuses.
const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// IncidentType classifies an incident record.
type IncidentType string

// Incident types. IncidentDeploymentSucceeded records successful completions
// with the same shape as failures.
const (
	IncidentRollback            IncidentType = "rollback"
	IncidentDeploymentFailure   IncidentType = "deployment_failure"
	IncidentCriticalEscalation  IncidentType = "critical_escalation"
	IncidentDeploymentSucceeded IncidentType = "deployment_succeeded"
)

// AllIncidentTypes returns every incident type.
func AllIncidentTypes() []IncidentType {
	return []IncidentType{
		IncidentRollback,
		IncidentDeploymentFailure,
		IncidentCriticalEscalation,
		IncidentDeploymentSucceeded,
	}
}

// String returns the string representation of the incident type.
func (t IncidentType) String() string {
	return string(t)
}

// Severity is the severity attached to outbound notifications.
type Severity string

// Notification severities, matching the paging API vocabulary.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)
