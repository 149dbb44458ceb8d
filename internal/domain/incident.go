package domain

import (
	"time"

	"github.com/mrz1836/cutover/internal/constants"
)

// Incident is an immutable audit record written on every terminal path of an
// attempt and on every rollback. Once committed it is never modified.
type Incident struct {
	ID        string                 `json:"id"`
	Type      constants.IncidentType `json:"type"`
	ServiceID string                 `json:"service_id"`
	AttemptID string                 `json:"attempt_id,omitempty"`
	Reason    string                 `json:"reason"`
	FromEnv   constants.EnvID        `json:"from_env"`
	ToEnv     constants.EnvID        `json:"to_env"`
	Timestamp time.Time              `json:"timestamp"`

	DurationSeconds float64 `json:"duration_seconds"`

	Initiator string `json:"initiator"`
	Revision  string `json:"revision,omitempty"`

	// Status is the attempt outcome at the time the incident was written.
	Status constants.Outcome `json:"status"`
}

// Severity returns the notification severity for the incident type.
func (i *Incident) Severity() constants.Severity {
	switch i.Type {
	case constants.IncidentCriticalEscalation:
		return constants.SeverityCritical
	case constants.IncidentRollback:
		return constants.SeverityError
	case constants.IncidentDeploymentFailure:
		return constants.SeverityWarning
	case constants.IncidentDeploymentSucceeded:
		return constants.SeverityInfo
	default:
		return constants.SeverityWarning
	}
}
