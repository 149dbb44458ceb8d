package environment

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/orchestration"
)

func newResolver(weights domain.Weights) (*Resolver, *orchestration.MemoryClient) {
	client := orchestration.NewMemoryClient()
	if weights != nil {
		client.SeedRouting("api", weights)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewResolver(client, clock.NewManual(now), zerolog.Nop()), client
}

func TestResolve_TargetIsTheOtherEnvironment(t *testing.T) {
	r, _ := newResolver(domain.Split(constants.EnvBlue, 100))

	snap, err := r.Resolve(context.Background(), "api", "")
	require.NoError(t, err)
	assert.Equal(t, "api", snap.ServiceID())
	assert.Equal(t, constants.EnvBlue, snap.Active())
	assert.Equal(t, constants.EnvGreen, snap.Target())
	assert.NotEmpty(t, snap.Revision())
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), snap.TakenAt())
}

func TestResolve_RequestedTarget(t *testing.T) {
	r, _ := newResolver(domain.Split(constants.EnvGreen, 100))

	snap, err := r.Resolve(context.Background(), "api", constants.EnvBlue)
	require.NoError(t, err)
	assert.Equal(t, constants.EnvBlue, snap.Target())

	_, err = r.Resolve(context.Background(), "api", constants.EnvGreen)
	require.ErrorIs(t, err, cerrors.ErrAlreadyActive)
	require.ErrorIs(t, err, cerrors.ErrValidation)
	assert.False(t, IsResolveFailure(err))

	_, err = r.Resolve(context.Background(), "api", "red")
	require.ErrorIs(t, err, cerrors.ErrUnknownEnvironment)
}

func TestResolve_SplitRoutingIsAmbiguous(t *testing.T) {
	r, _ := newResolver(domain.Split(constants.EnvGreen, 25))

	_, err := r.Resolve(context.Background(), "api", "")
	require.ErrorIs(t, err, cerrors.ErrAmbiguousRouting)
	assert.True(t, IsResolveFailure(err))
}

func TestResolve_MissingRoutingObject(t *testing.T) {
	r, _ := newResolver(nil)

	_, err := r.Resolve(context.Background(), "api", "")
	require.ErrorIs(t, err, cerrors.ErrRoutingObjectMissing)
	assert.True(t, IsResolveFailure(err))
}

func TestSnapshot_WeightsAreImmutable(t *testing.T) {
	r, _ := newResolver(domain.Split(constants.EnvBlue, 100))
	snap, err := r.Resolve(context.Background(), "api", "")
	require.NoError(t, err)

	w := snap.Weights()
	w[constants.EnvBlue] = 0
	assert.Equal(t, 100, snap.Weights()[constants.EnvBlue])
}

func TestRevalidate(t *testing.T) {
	r, client := newResolver(domain.Split(constants.EnvBlue, 100))
	ctx := context.Background()

	snap, err := r.Resolve(ctx, "api", "")
	require.NoError(t, err)
	require.NoError(t, r.Revalidate(ctx, snap))

	client.SeedRouting("api", domain.Split(constants.EnvGreen, 100))
	err = r.Revalidate(ctx, snap)
	require.ErrorIs(t, err, cerrors.ErrSnapshotStale)
	require.ErrorIs(t, err, cerrors.ErrConflict)
	assert.Contains(t, err.Error(), "changed since 2026-03-01T12:00:00Z")
}

func TestRevalidate_RewriteWithSameWeightsIsStale(t *testing.T) {
	r, client := newResolver(domain.Split(constants.EnvBlue, 100))
	ctx := context.Background()

	snap, err := r.Resolve(ctx, "api", "")
	require.NoError(t, err)

	client.SeedRouting("api", domain.Split(constants.EnvBlue, 100))
	require.ErrorIs(t, r.Revalidate(ctx, snap), cerrors.ErrSnapshotStale)
}
