package errors

import "errors"

// ErrorInfo holds user-facing message and suggested action for an error.
type ErrorInfo struct {
	// Message is the user-friendly error description.
	Message string
	// Action is a suggested action to resolve the issue (empty if none).
	Action string
}

type errorEntry struct {
	err  error
	info ErrorInfo
}

// errorInfoEntries maps sentinel errors to operator-facing messages.
// Specific errors come before failure classes so the most precise entry wins.
//
//nolint:gochecknoglobals // Pre-built mapping
var errorInfoEntries = []errorEntry{
	{
		err: ErrServiceFrozen,
		info: ErrorInfo{
			Message: "Service is frozen after a critical escalation.",
			Action:  "Investigate both environments, then run 'cutover rollback' or rerun with --force.",
		},
	},
	{
		err: ErrLeaseHeld,
		info: ErrorInfo{
			Message: "Another controller holds the lease for this service.",
			Action:  "Wait for the running attempt, or use 'cutover cancel <service>' to request an abort.",
		},
	},
	{
		err: ErrLeaseNotHeld,
		info: ErrorInfo{
			Message: "The lease for this service was lost during the operation.",
			Action:  "Check 'cutover status <service>' before retrying.",
		},
	},
	{
		err: ErrAmbiguousRouting,
		info: ErrorInfo{
			Message: "Live routing does not have a single active environment.",
			Action:  "Restore a 100/0 split with 'cutover rollback' before starting a new rollout.",
		},
	},
	{
		err: ErrAlreadyActive,
		info: ErrorInfo{
			Message: "The requested environment already serves all traffic.",
			Action:  "Omit --environment to deploy to the idle environment.",
		},
	},
	{
		err: ErrWorkloadNotReady,
		info: ErrorInfo{
			Message: "The target workload did not become ready. Traffic was not touched.",
			Action:  "Inspect the workload in the cluster and retry.",
		},
	},
	{
		err: ErrHealthGateTimeout,
		info: ErrorInfo{
			Message: "The health gate timed out. Traffic was not touched.",
			Action:  "Check the target environment's health endpoints or raise health.overall_timeout.",
		},
	},
	{
		err: ErrHealthCheckFailed,
		info: ErrorInfo{
			Message: "Health checks failed against the target environment. Traffic was not touched.",
			Action:  "Check the target environment's logs and retry.",
		},
	},
	{
		err: ErrSmokeTestFailed,
		info: ErrorInfo{
			Message: "A smoke test failed against the target environment. Traffic was not touched.",
			Action:  "Fix the failing assertion and retry.",
		},
	},
	{
		err: ErrCriticalEscalation,
		info: ErrorInfo{
			Message: "Rollback could not restore a healthy environment. Operators have been paged.",
			Action:  "Both environments are suspect. Intervene manually.",
		},
	},
	{
		err: ErrThresholdBreach,
		info: ErrorInfo{
			Message: "Metrics breached thresholds during the rollout. Traffic was rolled back.",
			Action:  "Review the incident with 'cutover incidents list'.",
		},
	},
	{
		err: ErrInfrastructure,
		info: ErrorInfo{
			Message: "The orchestration or metrics API could not be reached.",
			Action:  "Check cluster and metrics backend connectivity.",
		},
	},
	{
		err: ErrConflict,
		info: ErrorInfo{
			Message: "Another controller is mutating this service.",
			Action:  "Retry once the running attempt finishes.",
		},
	},
	{
		err: ErrValidation,
		info: ErrorInfo{
			Message: "The request or configuration is invalid. Nothing was changed.",
			Action:  "Run 'cutover config show' and fix the reported field.",
		},
	},
}

// UserMessage returns an operator-friendly message for err.
// Unrecognized errors return their original message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return getErrorInfo(err).Message
}

// Actionable returns a user-friendly message and a suggested action.
// The action is empty when no clear remedy exists.
func Actionable(err error) (message, action string) {
	if err == nil {
		return "", ""
	}
	info := getErrorInfo(err)
	return info.Message, info.Action
}

func getErrorInfo(err error) ErrorInfo {
	for _, entry := range errorInfoEntries {
		if errors.Is(err, entry.err) {
			return entry.info
		}
	}
	return ErrorInfo{Message: err.Error()}
}
