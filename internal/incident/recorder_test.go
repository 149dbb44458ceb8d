package incident

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

func newRecorder(t *testing.T) (*Recorder, *clock.Manual) {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	clk := clock.NewManual(baseTime)
	return NewRecorder(s, clk, zerolog.Nop()), clk
}

func TestNewID(t *testing.T) {
	id := NewID("inc", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^inc-20260102-030405-[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewID("inc", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Regexp(t, `^att-`, NewAttemptID(baseTime))
}

func TestRecorder_RecordAssignsIDAndTimestamp(t *testing.T) {
	r, _ := newRecorder(t)
	ctx := context.Background()

	inc := &domain.Incident{Type: constants.IncidentRollback, ServiceID: "api"}
	require.NoError(t, r.Record(ctx, inc))
	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, baseTime, inc.Timestamp)

	got, err := r.Store().Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, inc, got)

	require.ErrorIs(t, r.Record(ctx, nil), cerrors.ErrEmptyValue)
}

func TestRecorder_RecordRetryIsIdempotent(t *testing.T) {
	r, _ := newRecorder(t)
	ctx := context.Background()

	inc := &domain.Incident{ID: "inc-retry", Type: constants.IncidentRollback, ServiceID: "api", Reason: "first"}
	require.NoError(t, r.Record(ctx, inc))

	retry := *inc
	retry.Reason = "second"
	require.NoError(t, r.Record(ctx, &retry))

	got, err := r.Store().Get(ctx, "inc-retry")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Reason, "the stored record is never rewritten")

	incs, err := r.Store().List(ctx, Filter{ServiceID: "api"})
	require.NoError(t, err)
	assert.Len(t, incs, 1)
}

func TestRecorder_Frozen(t *testing.T) {
	r, clk := newRecorder(t)
	ctx := context.Background()

	frozen, latest, err := r.Frozen(ctx, "api")
	require.NoError(t, err)
	assert.False(t, frozen)
	assert.Nil(t, latest)

	require.NoError(t, r.Record(ctx, &domain.Incident{Type: constants.IncidentCriticalEscalation, ServiceID: "api"}))
	err = r.CheckFrozen(ctx, "api")
	require.ErrorIs(t, err, cerrors.ErrServiceFrozen)
	assert.Equal(t, cerrors.ExitFatal, cerrors.ExitCode(err))

	// Other services are unaffected.
	require.NoError(t, r.CheckFrozen(ctx, "web"))

	// A later successful rollback lifts the freeze.
	clk.Advance(time.Minute)
	require.NoError(t, r.Record(ctx, &domain.Incident{Type: constants.IncidentRollback, ServiceID: "api"}))
	require.NoError(t, r.CheckFrozen(ctx, "api"))
}

func TestRecorder_ArchiveAndLatestAttempt(t *testing.T) {
	r, _ := newRecorder(t)
	ctx := context.Background()

	a, err := r.LatestAttempt(ctx, "api")
	require.NoError(t, err)
	assert.Nil(t, a)

	require.NoError(t, r.Archive(ctx, &domain.DeploymentAttempt{
		ID: "att-1", ServiceID: "api", SourceEnv: constants.EnvBlue, TargetEnv: constants.EnvGreen, StartedAt: baseTime,
	}))
	a, err = r.LatestAttempt(ctx, "api")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, constants.EnvBlue, a.SourceEnv)
}
