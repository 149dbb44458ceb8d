package rollout

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

func TestManualRollback_RevertsLatestAttempt(t *testing.T) {
	r := newRig(t)
	_, err := r.run(RunRequest{})
	require.NoError(t, err)
	require.Equal(t, domain.Split(constants.EnvGreen, 100), r.routing())

	exec := r.executor(r.client, r.leases, false)
	res, err := exec.ManualRollback(context.Background(), ManualRequest{
		ServiceID: "api",
		Reason:    "customer reports",
		Initiator: "operator:test",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.EnvBlue, res.To)
	assert.False(t, res.AbortFiled)
	require.NotNil(t, res.Incident)
	assert.Equal(t, constants.IncidentRollback, res.Incident.Type)
	assert.Equal(t, "customer reports", res.Incident.Reason)
	assert.Equal(t, domain.Split(constants.EnvBlue, 100), r.routing())

	holder, err := r.leases.Holder(context.Background(), "api")
	require.NoError(t, err)
	assert.Nil(t, holder)
}

func TestManualRollback_FallsBackToLighterEnvironment(t *testing.T) {
	r := newRig(t)
	r.client.SeedRouting("api", domain.Split(constants.EnvGreen, 30))

	res, err := r.executor(r.client, r.leases, false).ManualRollback(context.Background(), ManualRequest{ServiceID: "api"})
	require.NoError(t, err)
	assert.Equal(t, constants.EnvGreen, res.To)
	assert.Equal(t, "manual rollback", res.Incident.Reason)
	assert.Equal(t, domain.Split(constants.EnvGreen, 100), r.routing())
}

func TestManualRollback_EvenSplitIsAmbiguous(t *testing.T) {
	r := newRig(t)
	r.client.SeedRouting("api", domain.Split(constants.EnvGreen, 50))

	_, err := r.executor(r.client, r.leases, false).ManualRollback(context.Background(), ManualRequest{ServiceID: "api"})
	require.ErrorIs(t, err, cerrors.ErrAmbiguousRouting)
	assert.Equal(t, cerrors.ExitGateFailure, cerrors.ExitCode(err))
}

func TestManualRollback_LiftsFreeze(t *testing.T) {
	r := newRig(t)
	r.metrics = breachAt(25)
	r.probes.SetStatus("/blue/healthz", http.StatusServiceUnavailable)
	_, err := r.run(RunRequest{})
	require.ErrorIs(t, err, cerrors.ErrCriticalEscalation)
	require.ErrorIs(t, r.recorder.CheckFrozen(context.Background(), "api"), cerrors.ErrServiceFrozen)

	r.probes.SetStatus("/blue/healthz", http.StatusOK)
	res, err := r.executor(r.client, r.leases, false).ManualRollback(context.Background(), ManualRequest{ServiceID: "api"})
	require.NoError(t, err)
	assert.Equal(t, constants.EnvBlue, res.To)
	require.NoError(t, r.recorder.CheckFrozen(context.Background(), "api"))
}

func TestManualRollback_LeaseHeld(t *testing.T) {
	r := newRig(t)
	_, err := r.leases.Acquire(context.Background(), "api", "running-attempt")
	require.NoError(t, err)
	exec := r.executor(r.client, r.leases, false)

	_, err = exec.ManualRollback(context.Background(), ManualRequest{ServiceID: "api"})
	require.ErrorIs(t, err, cerrors.ErrConflict)

	res, err := exec.ManualRollback(context.Background(), ManualRequest{ServiceID: "api", Reason: "stop it", Force: true})
	require.NoError(t, err)
	assert.True(t, res.AbortFiled)
	assert.Nil(t, res.Incident)

	reason, pending, err := r.leases.AbortRequested(context.Background(), "api")
	require.NoError(t, err)
	assert.True(t, pending)
	assert.Equal(t, "stop it", reason)
	assert.Equal(t, 0, r.client.TotalCalls())
}

func TestCancel(t *testing.T) {
	r := newRig(t)
	exec := r.executor(r.client, r.leases, false)

	err := exec.Cancel(context.Background(), "api", "")
	require.ErrorIs(t, err, cerrors.ErrValidation)

	_, err = r.leases.Acquire(context.Background(), "api", "running-attempt")
	require.NoError(t, err)
	require.NoError(t, exec.Cancel(context.Background(), "api", ""))

	reason, pending, err := r.leases.AbortRequested(context.Background(), "api")
	require.NoError(t, err)
	assert.True(t, pending)
	assert.Equal(t, "cancelled by operator", reason)

	require.ErrorIs(t, exec.Cancel(context.Background(), "", "x"), cerrors.ErrValidation)
}
