package domain

import (
	"time"

	"github.com/mrz1836/cutover/internal/constants"
)

// DeploymentAttempt is one end-to-end rollout of a revision to the idle environment.
// It is created when the executor starts, mutated stage by stage, and archived
// when it reaches a terminal state.
//
// Example JSON representation:
//
//	{
//	    "id": "5f0c1f6e-3f0a-4a8e-9f59-7f3a0c1e2d4b",
//	    "service_id": "api",
//	    "source_env": "blue",
//	    "target_env": "green",
//	    "state": "completed",
//	    "outcome": "succeeded",
//	    "stages": [{"percentage": 1, "verdict": "pass", ...}],
//	    "schema_version": 1
//	}
type DeploymentAttempt struct {
	ID        string          `json:"id"`
	ServiceID string          `json:"service_id"`
	SourceEnv constants.EnvID `json:"source_env"`
	TargetEnv constants.EnvID `json:"target_env"`

	// Revision is the image or version being rolled out.
	Revision string `json:"revision"`

	// Initiator identifies who started the attempt (e.g. "operator:alice").
	Initiator string `json:"initiator"`

	DryRun bool `json:"dry_run"`

	State   constants.AttemptState `json:"state"`
	Outcome constants.Outcome      `json:"outcome"`

	StartedAt time.Time `json:"started_at"`

	// CompletedAt is set on entry to a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Stages is strictly increasing in percentage and ends at the first failure.
	Stages []StageResult `json:"stages"`

	Transitions []Transition `json:"transitions"`

	// Error is the terminal failure message, empty on success.
	Error string `json:"error,omitempty"`

	SchemaVersion int `json:"schema_version"`
}

// Duration returns how long the attempt ran, up to now if it has not completed.
func (a *DeploymentAttempt) Duration(now time.Time) time.Duration {
	end := now
	if a.CompletedAt != nil {
		end = *a.CompletedAt
	}
	return end.Sub(a.StartedAt)
}

// LastStage returns the most recent stage result, or nil.
func (a *DeploymentAttempt) LastStage() *StageResult {
	if len(a.Stages) == 0 {
		return nil
	}
	return &a.Stages[len(a.Stages)-1]
}

// Transition records one state change of an attempt.
type Transition struct {
	From      constants.AttemptState `json:"from"`
	To        constants.AttemptState `json:"to"`
	Timestamp time.Time              `json:"timestamp"`
	Reason    string                 `json:"reason,omitempty"`
}

// StageResult is the outcome of holding one traffic percentage for its dwell.
type StageResult struct {
	Percentage int               `json:"percentage"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Metrics    StageMetrics      `json:"metrics"`
	Verdict    constants.Verdict `json:"verdict"`
	Reason     string            `json:"reason,omitempty"`
}

// StageMetrics holds the worst values observed during a stage.
type StageMetrics struct {
	ErrorRate    float64 `json:"error_rate"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
}
