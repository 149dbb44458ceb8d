package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/retry"
	"github.com/mrz1836/cutover/internal/testutil"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func infra() error {
	return cerrors.Mark(testutil.ErrMockNetwork, cerrors.ErrInfrastructure)
}

func TestRetrying_RecoversFromTransientFailures(t *testing.T) {
	m := NewMemoryClient()
	m.SeedRouting("api", domain.Split(constants.EnvBlue, 100))
	m.FailNext(OpGetRouting, infra(), infra())

	r := NewRetrying(m, fastPolicy(3), zerolog.Nop())
	state, err := r.GetRouting(context.Background(), "api")
	require.NoError(t, err)
	assert.Equal(t, 100, state.Weights[constants.EnvBlue])
	assert.Equal(t, 3, m.Calls(OpGetRouting))
}

func TestRetrying_ExhaustedIsInfrastructure(t *testing.T) {
	m := NewMemoryClient()
	m.FailNext(OpPatchWeights, infra(), infra(), infra(), infra())

	r := NewRetrying(m, fastPolicy(3), zerolog.Nop())
	_, err := r.PatchWeights(context.Background(), "api", domain.Split(constants.EnvBlue, 100))
	require.ErrorIs(t, err, cerrors.ErrInfrastructure)
	assert.Equal(t, 3, m.Calls(OpPatchWeights))
	assert.Empty(t, m.History("api"))
}

func TestRetrying_NonInfrastructureIsNotRetried(t *testing.T) {
	m := NewMemoryClient()
	m.FailNext(OpApply, cerrors.Mark(testutil.ErrMockAPIError, cerrors.ErrConflict))

	r := NewRetrying(m, fastPolicy(5), zerolog.Nop())
	err := r.Apply(context.Background(), domain.WorkloadSpec{ServiceID: "api", Env: constants.EnvGreen})
	require.ErrorIs(t, err, cerrors.ErrConflict)
	assert.Equal(t, 1, m.Calls(OpApply))
}

func TestRetrying_GetStatusPassesThrough(t *testing.T) {
	m := NewMemoryClient()
	require.NoError(t, m.Apply(context.Background(), domain.WorkloadSpec{ServiceID: "api", Env: constants.EnvBlue}))

	r := NewRetrying(m, retry.DefaultPolicy(), zerolog.Nop())
	status, err := r.GetStatus(context.Background(), "api", constants.EnvBlue)
	require.NoError(t, err)
	assert.True(t, status.Ready)
}
