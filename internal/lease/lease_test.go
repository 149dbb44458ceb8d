package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cutover/internal/clock"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// managerFactory builds a fresh Manager plus a second handle onto the same
// backing store, standing in for another controller process.
type managerFactory func(t *testing.T) (Manager, Manager)

func backends() map[string]managerFactory {
	return map[string]managerFactory{
		"memory": func(_ *testing.T) (Manager, Manager) {
			m := NewMemory()
			return m, m
		},
		"file": func(t *testing.T) (Manager, Manager) {
			dir := t.TempDir()
			a, err := NewFile(dir)
			require.NoError(t, err)
			b, err := NewFile(dir)
			require.NoError(t, err)
			return a, b
		},
		"redis": func(t *testing.T) (Manager, Manager) {
			mr := miniredis.RunT(t)
			newClient := func() *redis.Client {
				c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = c.Close() })
				return c
			}
			return NewRedis(newClient(), "", time.Minute), NewRedis(newClient(), "", time.Minute)
		},
	}
}

func TestManager_SingleWriter(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, second := factory(t)

			l, err := first.Acquire(ctx, "api", "controller-a")
			require.NoError(t, err)
			require.NoError(t, first.Validate(ctx, l))

			_, err = second.Acquire(ctx, "api", "controller-b")
			require.ErrorIs(t, err, cerrors.ErrConflict)
			require.ErrorIs(t, err, cerrors.ErrLeaseHeld)
			assert.Contains(t, err.Error(), "controller-a")

			other, err := second.Acquire(ctx, "web", "controller-b")
			require.NoError(t, err, "leases are per service")
			require.NoError(t, second.Release(ctx, other))

			holder, err := second.Holder(ctx, "api")
			require.NoError(t, err)
			require.NotNil(t, holder)
			assert.Equal(t, "controller-a", holder.Holder)

			require.NoError(t, first.Release(ctx, l))
			require.ErrorIs(t, first.Validate(ctx, l), cerrors.ErrLeaseNotHeld)

			free, err := second.Holder(ctx, "api")
			require.NoError(t, err)
			assert.Nil(t, free)

			next, err := second.Acquire(ctx, "api", "controller-b")
			require.NoError(t, err)
			require.NoError(t, second.Release(ctx, next))
		})
	}
}

func TestManager_ValidateRejectsForeignLease(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m, _ := factory(t)

			l, err := m.Acquire(ctx, "api", "a")
			require.NoError(t, err)
			defer func() { _ = m.Release(ctx, l) }()

			forged := *l
			forged.Token = "forged"
			err = m.Validate(ctx, &forged)
			require.ErrorIs(t, err, cerrors.ErrConflict)

			require.ErrorIs(t, m.Validate(ctx, nil), cerrors.ErrLeaseNotHeld)
			require.NoError(t, m.Release(ctx, &forged), "releasing a foreign lease is a no-op")
			require.NoError(t, m.Validate(ctx, l))
		})
	}
}

func TestManager_AbortRequests(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m, other := factory(t)

			_, ok, err := m.AbortRequested(ctx, "api")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, other.RequestAbort(ctx, "api", "operator cancel"))
			reason, ok, err := m.AbortRequested(ctx, "api")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "operator cancel", reason)

			l, err := m.Acquire(ctx, "api", "a")
			require.NoError(t, err)
			_, ok, err = m.AbortRequested(ctx, "api")
			require.NoError(t, err)
			assert.False(t, ok, "acquire clears stale abort requests")

			require.NoError(t, other.RequestAbort(ctx, "api", "again"))
			require.NoError(t, m.ClearAbort(ctx, "api"))
			_, ok, err = m.AbortRequested(ctx, "api")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, m.Release(ctx, l))
		})
	}
}

func TestManager_EmptyServiceID(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			m, _ := factory(t)
			_, err := m.Acquire(context.Background(), "", "a")
			require.ErrorIs(t, err, cerrors.ErrEmptyValue)
		})
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(WithTTL(time.Minute), WithClock(c))

	l, err := m.Acquire(ctx, "api", "a")
	require.NoError(t, err)
	assert.Equal(t, c.Now().Add(time.Minute), l.ExpiresAt)

	c.Advance(45 * time.Second)
	require.NoError(t, m.Renew(ctx, l))

	c.Advance(45 * time.Second)
	require.NoError(t, m.Validate(ctx, l), "renewal extended the lease")

	c.Advance(2 * time.Minute)
	require.ErrorIs(t, m.Validate(ctx, l), cerrors.ErrLeaseNotHeld)
	require.ErrorIs(t, m.Renew(ctx, l), cerrors.ErrLeaseNotHeld)

	_, err = m.Acquire(ctx, "api", "b")
	require.NoError(t, err, "expired lease can be taken over")
}

func TestRedis_ExpiryAndStaleRelease(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	m := NewRedis(client, "test:", 10*time.Second)

	stale, err := m.Acquire(ctx, "api", "a")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:api"))

	mr.FastForward(11 * time.Second)
	require.ErrorIs(t, m.Renew(ctx, stale), cerrors.ErrLeaseNotHeld)

	fresh, err := m.Acquire(ctx, "api", "b")
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, stale))
	require.NoError(t, m.Validate(ctx, fresh), "stale holder cannot delete its successor")

	mr.FastForward(5 * time.Second)
	require.NoError(t, m.Renew(ctx, fresh))
	mr.FastForward(8 * time.Second)
	require.NoError(t, m.Validate(ctx, fresh), "renew reset the ttl")
}

func TestRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()
	mr.Close()

	_, err := NewRedis(client, "", time.Minute).Acquire(context.Background(), "api", "a")
	require.ErrorIs(t, err, cerrors.ErrInfrastructure)
}

func TestKeepAlive(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	m := NewRedis(client, "", time.Second)

	l, err := m.Acquire(ctx, "api", "a")
	require.NoError(t, err)

	mr.FastForward(500 * time.Millisecond)
	require.Less(t, mr.TTL(m.key("api")), time.Second)

	stop := KeepAlive(ctx, m, l, 10*time.Millisecond, zerolog.Nop())
	require.Eventually(t, func() bool {
		ttl := mr.TTL(m.key("api"))
		return ttl == time.Second
	}, time.Second, 5*time.Millisecond)
	stop()
	stop()

	require.NoError(t, m.Validate(ctx, l))
}

func TestKeepAlive_NoopWithoutInterval(t *testing.T) {
	stop := KeepAlive(context.Background(), NewMemory(), &Lease{}, 0, zerolog.Nop())
	assert.NotPanics(t, stop)
}
