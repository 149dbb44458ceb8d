package domain

import (
	"time"

	"github.com/mrz1836/cutover/internal/constants"
)

// HealthCheckResult records one probe attempt against an endpoint.
type HealthCheckResult struct {
	Target     constants.EnvID `json:"target"`
	Endpoint   string          `json:"endpoint"`
	StatusCode int             `json:"status_code"`
	LatencyMs  int64           `json:"latency_ms"`
	Attempt    int             `json:"attempt"`
	Timestamp  time.Time       `json:"timestamp"`
	Passed     bool            `json:"passed"`
	Error      string          `json:"error,omitempty"`
}

// AssertionResult records one smoke assertion.
type AssertionResult struct {
	Name       string        `json:"name"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"duration"`
	Passed     bool          `json:"passed"`
	Error      string        `json:"error,omitempty"`
}

// MetricSample is one point-in-time reading for an environment.
type MetricSample struct {
	Timestamp    time.Time `json:"timestamp"`
	ErrorRate    float64   `json:"error_rate"`
	P95LatencyMs float64   `json:"p95_latency_ms"`

	// Breached is true when the sample exceeded any threshold.
	Breached bool `json:"breached"`
}
