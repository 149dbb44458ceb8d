// Package orchestration is the narrow interface cutover uses to drive the
// workload orchestrator.
//
// Four calls cover everything a rollout needs: Apply a workload spec, read a
// workload's rollout status, read a service's routing object, and replace the
// routing weights in one write. Backends:
//
//   - Kubernetes: one Deployment per environment plus a ConfigMap routing object
//   - Memory: an in-process fake used by tests and local experiments
//   - Simulator: a Memory client seeded for dry runs that never touches the cluster
//
// Retrying wraps any backend with bounded exponential backoff and marks
// exhausted failures with errors.ErrInfrastructure.
package orchestration

import (
	"context"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
)

// Client drives workloads and routing for blue/green services.
type Client interface {
	// Apply creates or updates the workload described by spec.
	Apply(ctx context.Context, spec domain.WorkloadSpec) error

	// GetStatus reads the rollout status of the workload backing env.
	GetStatus(ctx context.Context, serviceID string, env constants.EnvID) (domain.WorkloadStatus, error)

	// GetRouting reads the service's routing object.
	GetRouting(ctx context.Context, serviceID string) (domain.RoutingState, error)

	// PatchWeights replaces both weights in a single write and returns the
	// routing state as stored. Readers never observe a partial update.
	PatchWeights(ctx context.Context, serviceID string, weights domain.Weights) (domain.RoutingState, error)
}

// Placement locates a service's objects inside the orchestrator.
type Placement struct {
	Namespace     string
	RoutingObject string

	// Workloads maps each environment to its workload name.
	Workloads map[constants.EnvID]string
}

// Workload returns the workload name for env.
func (p Placement) Workload(env constants.EnvID) string {
	return p.Workloads[env]
}

// Locator resolves a service id to its Placement.
type Locator func(serviceID string) (Placement, error)
