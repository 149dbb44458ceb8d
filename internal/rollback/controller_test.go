package rollback

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/health"
	"github.com/mrz1836/cutover/internal/incident"
	"github.com/mrz1836/cutover/internal/lease"
	"github.com/mrz1836/cutover/internal/notify"
	"github.com/mrz1836/cutover/internal/orchestration"
	"github.com/mrz1836/cutover/internal/retry"
	"github.com/mrz1836/cutover/internal/testutil"
	"github.com/mrz1836/cutover/internal/traffic"
)

var start = time.Date(2026, 5, 6, 12, 0, 0, 0, time.UTC)

type harness struct {
	client   *orchestration.MemoryClient
	leases   *lease.Memory
	traffic  *traffic.Controller
	probes   *testutil.ProbeServer
	recorder *incident.Recorder
	chat     *notify.RecordingSink
	pager    *notify.RecordingSink
	notifier *notify.Dispatcher
	clock    *clock.Manual
	ctrl     *Controller
	lease    *lease.Lease
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		client: orchestration.NewMemoryClient(),
		leases: lease.NewMemory(),
		probes: testutil.NewProbeServer(t),
		chat:   notify.NewRecordingSink("chat"),
		pager:  notify.NewRecordingSink("pager"),
		clock:  clock.NewManual(start.Add(3 * time.Minute)),
	}
	h.client.SeedRouting("api", domain.Split(constants.EnvGreen, 25))
	h.traffic = traffic.NewController(h.client, h.leases, zerolog.Nop())

	store, err := incident.NewFileStore(t.TempDir())
	require.NoError(t, err)
	h.recorder = incident.NewRecorder(store, h.clock, zerolog.Nop())

	h.notifier = notify.NewDispatcher(zerolog.Nop(), notify.WithPolicy(retry.Policy{MaxAttempts: 1}))
	h.notifier.Add(h.chat, constants.SeverityInfo)
	h.notifier.Add(h.pager, constants.SeverityCritical)

	targets := func(serviceID string, env constants.EnvID) (domain.Target, error) {
		return domain.Target{ServiceID: serviceID, Env: env, BaseURL: h.probes.URL + "/" + env.String()}, nil
	}
	opts := health.Options{
		PerRequestTimeout: 200 * time.Millisecond,
		MaxRetries:        2,
		RetryDelay:        time.Millisecond,
		OverallTimeout:    2 * time.Second,
		Parallelism:       2,
	}
	h.ctrl = NewController(
		h.traffic.Reverter(),
		health.NewVerifier(zerolog.Nop(), health.WithHTTPClient(h.probes.Client())),
		targets,
		[]health.Check{{Endpoint: "/healthz", ExpectedStatus: http.StatusOK}},
		opts,
		zerolog.Nop(),
		WithRecorder(h.recorder),
		WithNotifier(h.notifier),
		WithClock(h.clock),
		WithTimeout(5*time.Second),
	)

	h.lease, err = h.leases.Acquire(context.Background(), "api", "test")
	require.NoError(t, err)
	return h
}

func (h *harness) request() Request {
	return Request{
		ServiceID: "api",
		From:      constants.EnvGreen,
		To:        constants.EnvBlue,
		Reason:    "error rate 2.50% exceeds 1.00% at 25%",
		Initiator: "controller",
		AttemptID: "att-1",
		Revision:  "v2",
		StartedAt: start,
	}
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, h.notifier.Close(context.Background()))
}

func TestRollback_HealthyTarget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inc, err := h.ctrl.Rollback(ctx, h.lease, h.request())
	require.NoError(t, err)
	require.NotNil(t, inc)
	assert.Equal(t, constants.IncidentRollback, inc.Type)
	assert.Equal(t, constants.OutcomeRolledBack, inc.Status)
	assert.InDelta(t, 180, inc.DurationSeconds, 0.001)
	assert.Equal(t, constants.EnvBlue, inc.ToEnv)

	routing, err := h.client.GetRouting(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, domain.Split(constants.EnvBlue, 100), routing.Weights)

	stored, err := h.recorder.Store().Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, inc.Reason, stored.Reason)

	h.drain(t)
	assert.Len(t, h.chat.Events(), 1)
	assert.Empty(t, h.pager.Events())
	assert.Equal(t, 1, h.probes.Hits("/blue/healthz"))
}

func TestRollback_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.Rollback(ctx, h.lease, h.request())
	require.NoError(t, err)
	_, err = h.ctrl.Rollback(ctx, h.lease, h.request())
	require.NoError(t, err)

	history := h.client.History("api")
	require.Len(t, history, 3)
	assert.Equal(t, domain.Split(constants.EnvBlue, 100), history[1])
	assert.Equal(t, domain.Split(constants.EnvBlue, 100), history[2])
	for _, w := range history {
		assert.Equal(t, 100, w.Sum())
	}
}

func TestRollback_TargetUnhealthyEscalates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.probes.SetStatus("/blue/healthz", http.StatusServiceUnavailable)

	inc, err := h.ctrl.Rollback(ctx, h.lease, h.request())
	require.ErrorIs(t, err, cerrors.ErrCriticalEscalation)
	assert.Equal(t, cerrors.ExitFatal, cerrors.ExitCode(err))
	require.NotNil(t, inc)
	assert.Equal(t, constants.IncidentCriticalEscalation, inc.Type)
	assert.Equal(t, constants.OutcomeFailed, inc.Status)

	// Exactly one routing write: the revert. Nothing moves afterwards.
	assert.Equal(t, 1, h.client.Calls(orchestration.OpPatchWeights))
	assert.Equal(t, 2, h.probes.Hits("/blue/healthz"))

	frozen, latest, err := h.recorder.Frozen(ctx, "api")
	require.NoError(t, err)
	assert.True(t, frozen)
	assert.Equal(t, inc.ID, latest.ID)

	h.drain(t)
	require.Len(t, h.pager.Events(), 1)
	assert.Equal(t, constants.SeverityCritical, h.pager.Events()[0].Severity)
}

func TestRollback_RevertFailureEscalates(t *testing.T) {
	h := newHarness(t)
	h.client.FailNext(orchestration.OpPatchWeights, cerrors.Mark(testutil.ErrMockNetwork, cerrors.ErrInfrastructure))

	inc, err := h.ctrl.Rollback(context.Background(), h.lease, h.request())
	require.ErrorIs(t, err, cerrors.ErrCriticalEscalation)
	assert.Equal(t, constants.IncidentCriticalEscalation, inc.Type)
	assert.Equal(t, 0, h.probes.TotalHits())
}

func TestRollback_RequiresLease(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.leases.Release(context.Background(), h.lease))

	_, err := h.ctrl.Rollback(context.Background(), h.lease, h.request())
	require.ErrorIs(t, err, cerrors.ErrCriticalEscalation)
	assert.Equal(t, 0, h.client.Calls(orchestration.OpPatchWeights))
}

func TestRollback_SurvivesCancelledParent(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inc, err := h.ctrl.Rollback(ctx, h.lease, h.request())
	require.NoError(t, err)
	assert.Equal(t, constants.IncidentRollback, inc.Type)
}

func TestRollback_InvalidRequest(t *testing.T) {
	h := newHarness(t)
	req := h.request()
	req.To = req.From

	_, err := h.ctrl.Rollback(context.Background(), h.lease, req)
	require.ErrorIs(t, err, cerrors.ErrValidation)
	assert.Equal(t, 0, h.client.Calls(orchestration.OpPatchWeights))
}
