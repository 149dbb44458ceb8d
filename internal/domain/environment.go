package domain

import (
	"strings"
	"time"

	"github.com/mrz1836/cutover/internal/constants"
)

// Environment is one of the two long-lived copies of a service.
// Environments are provisioned once and swap active/candidate roles across attempts.
type Environment struct {
	// ID is blue or green.
	ID constants.EnvID `json:"id"`

	// WorkloadRef names the orchestration workload backing this environment.
	WorkloadRef string `json:"workload_ref"`

	// TrafficWeight is the share of live traffic routed here (0..100).
	TrafficWeight int `json:"traffic_weight"`

	// HealthStatus is the result of the most recent verification.
	HealthStatus constants.HealthStatus `json:"health_status"`

	// LastVerifiedAt is when HealthStatus was last updated (nil if never).
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}

// Weights maps each environment to its traffic weight.
type Weights map[constants.EnvID]int

// Sum returns the total of all weights.
func (w Weights) Sum() int {
	total := 0
	for _, v := range w {
		total += v
	}
	return total
}

// Clone returns an independent copy.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Active returns the environment holding all traffic, if any.
func (w Weights) Active() (constants.EnvID, bool) {
	for _, env := range constants.AllEnvs() {
		if w[env] == 100 && w[env.Other()] == 0 {
			return env, true
		}
	}
	return "", false
}

// Equal reports whether both maps assign the same weight to blue and green.
func (w Weights) Equal(other Weights) bool {
	for _, env := range constants.AllEnvs() {
		if w[env] != other[env] {
			return false
		}
	}
	return len(w) == len(other)
}

// Split returns weights routing percent to target and the remainder to the other environment.
func Split(target constants.EnvID, percent int) Weights {
	return Weights{target: percent, target.Other(): 100 - percent}
}

// RoutingState is the routing object for a service as read from orchestration.
type RoutingState struct {
	ServiceID string  `json:"service_id"`
	Weights   Weights `json:"weights"`

	// Revision is an opaque version of the routing object (a resourceVersion
	// on Kubernetes). It changes on every write.
	Revision string `json:"revision"`
}

// Target is a concrete environment address that probes are sent to.
type Target struct {
	ServiceID string          `json:"service_id"`
	Env       constants.EnvID `json:"env"`

	// BaseURL is the environment's internal address, e.g. http://api-green.svc:8080.
	BaseURL string `json:"base_url"`
}

// URL joins path onto the target's base URL. Query strings in path are kept.
func (t Target) URL(path string) string {
	if path == "" {
		return t.BaseURL
	}
	return strings.TrimRight(t.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Addresser returns the probe target for one environment of a service.
type Addresser func(serviceID string, env constants.EnvID) (Target, error)

// WorkloadSpec describes the desired state of an environment's workload.
type WorkloadSpec struct {
	ServiceID string          `json:"service_id"`
	Env       constants.EnvID `json:"env"`
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Revision  string          `json:"revision"`
	Replicas  int32           `json:"replicas"`
}

// WorkloadStatus is the observed rollout state of a workload.
type WorkloadStatus struct {
	Name            string `json:"name"`
	DesiredReplicas int32  `json:"desired_replicas"`
	ReadyReplicas   int32  `json:"ready_replicas"`
	UpdatedReplicas int32  `json:"updated_replicas"`
	Ready           bool   `json:"ready"`
	Message         string `json:"message,omitempty"`
}
