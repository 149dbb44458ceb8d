package orchestration

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
)

// Simulator stands in for the orchestrator during dry runs. It starts with
// active holding all traffic, reports every workload ready at once, and logs
// each mutation it would have made. Nothing reaches a real cluster.
type Simulator struct {
	*MemoryClient

	logger zerolog.Logger
}

// NewSimulator returns a Simulator for serviceID with active at weight 100.
func NewSimulator(serviceID string, active constants.EnvID, logger zerolog.Logger) *Simulator {
	mem := NewMemoryClient()
	mem.SeedRouting(serviceID, domain.Split(active, 100))
	return &Simulator{
		MemoryClient: mem,
		logger:       logger.With().Bool("dry_run", true).Logger(),
	}
}

// Apply records spec and logs the workload that would be applied.
func (s *Simulator) Apply(ctx context.Context, spec domain.WorkloadSpec) error {
	s.logger.Info().
		Str("service", spec.ServiceID).
		Str("env", spec.Env.String()).
		Str("workload", spec.Name).
		Str("image", spec.Image).
		Str("revision", spec.Revision).
		Msg("would apply workload")
	return s.MemoryClient.Apply(ctx, spec)
}

// PatchWeights records weights and logs the routing write that would be made.
func (s *Simulator) PatchWeights(ctx context.Context, serviceID string, weights domain.Weights) (domain.RoutingState, error) {
	s.logger.Info().
		Str("service", serviceID).
		Int("blue", weights[constants.EnvBlue]).
		Int("green", weights[constants.EnvGreen]).
		Msg("would set traffic weights")
	return s.MemoryClient.PatchWeights(ctx, serviceID, weights)
}

// DryRun marks the Simulator as a client that never reaches a real cluster.
func (s *Simulator) DryRun() bool { return true }

// IsDryRun reports whether c only simulates mutations.
func IsDryRun(c Client) bool {
	d, ok := c.(interface{ DryRun() bool })
	return ok && d.DryRun()
}
