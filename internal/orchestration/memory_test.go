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
	"github.com/mrz1836/cutover/internal/testutil"
)

func TestMemoryClient_RoutingHistory(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	_, err := m.GetRouting(ctx, "api")
	require.ErrorIs(t, err, cerrors.ErrRoutingObjectMissing)

	m.SeedRouting("api", domain.Split(constants.EnvBlue, 100))
	first, err := m.GetRouting(ctx, "api")
	require.NoError(t, err)

	second, err := m.PatchWeights(ctx, "api", domain.Split(constants.EnvGreen, 10))
	require.NoError(t, err)
	assert.NotEqual(t, first.Revision, second.Revision)

	history := m.History("api")
	require.Len(t, history, 2)
	assert.Equal(t, 100, history[0][constants.EnvBlue])
	assert.Equal(t, 10, history[1][constants.EnvGreen])
	assert.Equal(t, 1, m.Calls(OpPatchWeights))
	assert.Equal(t, 3, m.TotalCalls())
}

func TestMemoryClient_ReturnedWeightsAreCopies(t *testing.T) {
	m := NewMemoryClient()
	m.SeedRouting("api", domain.Split(constants.EnvBlue, 100))

	state, err := m.GetRouting(context.Background(), "api")
	require.NoError(t, err)
	state.Weights[constants.EnvBlue] = 0

	again, err := m.GetRouting(context.Background(), "api")
	require.NoError(t, err)
	assert.Equal(t, 100, again.Weights[constants.EnvBlue])
}

func TestMemoryClient_ReadyAfter(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()
	m.SetReadyAfter("api", constants.EnvGreen, 2)

	status, err := m.GetStatus(ctx, "api", constants.EnvGreen)
	require.NoError(t, err)
	assert.False(t, status.Ready, "not applied yet")

	require.NoError(t, m.Apply(ctx, domain.WorkloadSpec{ServiceID: "api", Env: constants.EnvGreen, Name: "api-green", Replicas: 2}))
	for range 2 {
		status, err = m.GetStatus(ctx, "api", constants.EnvGreen)
		require.NoError(t, err)
		assert.False(t, status.Ready)
	}
	status, err = m.GetStatus(ctx, "api", constants.EnvGreen)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, int32(2), status.ReadyReplicas)

	spec, ok := m.Workload("api", constants.EnvGreen)
	require.True(t, ok)
	assert.Equal(t, "api-green", spec.Name)
}

func TestMemoryClient_FailNextAndHooks(t *testing.T) {
	m := NewMemoryClient()
	m.SeedRouting("api", domain.Split(constants.EnvBlue, 100))
	m.FailNext(OpGetRouting, testutil.ErrMockNetwork)

	var hooked int
	m.OnCall(OpGetRouting, func() { hooked++ })

	_, err := m.GetRouting(context.Background(), "api")
	require.ErrorIs(t, err, testutil.ErrMockNetwork)

	_, err = m.GetRouting(context.Background(), "api")
	require.NoError(t, err)
	assert.Equal(t, 2, hooked)
}

func TestSimulator_SeedsActiveAndCountsLocally(t *testing.T) {
	sim := NewSimulator("api", constants.EnvGreen, zerolog.Nop())
	ctx := context.Background()

	state, err := sim.GetRouting(ctx, "api")
	require.NoError(t, err)
	active, ok := state.Weights.Active()
	require.True(t, ok)
	assert.Equal(t, constants.EnvGreen, active)

	require.NoError(t, sim.Apply(ctx, domain.WorkloadSpec{ServiceID: "api", Env: constants.EnvBlue}))
	status, err := sim.GetStatus(ctx, "api", constants.EnvBlue)
	require.NoError(t, err)
	assert.True(t, status.Ready)

	_, err = sim.PatchWeights(ctx, "api", domain.Split(constants.EnvBlue, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, sim.Calls(OpPatchWeights))

	assert.True(t, IsDryRun(sim))
	assert.False(t, IsDryRun(NewMemoryClient()))
}

func TestWaitReady(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()
	require.NoError(t, m.Apply(ctx, domain.WorkloadSpec{ServiceID: "api", Env: constants.EnvGreen, Name: "api-green"}))
	m.SetReadyAfter("api", constants.EnvGreen, 3)

	status, err := WaitReady(ctx, m, "api", constants.EnvGreen, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, 4, m.Calls(OpGetStatus))
}

func TestWaitReady_Timeout(t *testing.T) {
	m := NewMemoryClient()
	require.NoError(t, m.Apply(context.Background(), domain.WorkloadSpec{ServiceID: "api", Env: constants.EnvGreen}))
	m.SetReadyAfter("api", constants.EnvGreen, -1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := WaitReady(ctx, m, "api", constants.EnvGreen, 5*time.Millisecond)
	require.ErrorIs(t, err, cerrors.ErrWorkloadNotReady)
	require.ErrorIs(t, err, cerrors.ErrGateFailure)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitReady_StatusError(t *testing.T) {
	m := NewMemoryClient()
	m.FailNext(OpGetStatus, testutil.ErrMockAPIError)

	_, err := WaitReady(context.Background(), m, "api", constants.EnvGreen, time.Millisecond)
	require.ErrorIs(t, err, testutil.ErrMockAPIError)
}
