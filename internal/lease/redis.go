package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// Lua scripts compare the stored record before touching it so that a
// controller whose lease expired cannot extend or delete its successor's lease.
//
//nolint:gochecknoglobals // compiled scripts are reused across calls
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Redis is a Manager backed by SET NX PX, for controllers on several hosts.
// Leases expire after ttl unless renewed; the executor renews them in the
// background while an attempt runs.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  clock.Clock
}

// redisRecord is the stored value. ExpiresAt is left out so renewals do not
// change the value the scripts compare against.
type redisRecord struct {
	ServiceID  string    `json:"service_id"`
	Holder     string    `json:"holder"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// NewRedis creates a redis lease manager. prefix defaults to "cutover:lease:".
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = constants.DefaultRedisLeasePrefix
	}
	if ttl <= 0 {
		ttl = constants.DefaultLeaseTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, clock: clock.RealClock{}}
}

func (r *Redis) key(serviceID string) string {
	return r.prefix + serviceID
}

func (r *Redis) abortKey(serviceID string) string {
	return r.prefix + serviceID + ":abort"
}

func encodeRecord(l *Lease) (string, error) {
	data, err := json.Marshal(redisRecord{
		ServiceID:  l.ServiceID,
		Holder:     l.Holder,
		Token:      l.Token,
		AcquiredAt: l.AcquiredAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode lease: %w", err)
	}
	return string(data), nil
}

func infraError(op string, err error) error {
	return cerrors.Mark(fmt.Errorf("redis %s: %w", op, err), cerrors.ErrInfrastructure)
}

// Acquire implements Manager.
func (r *Redis) Acquire(ctx context.Context, serviceID, holder string) (*Lease, error) {
	if err := validateArgs(serviceID); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	l := &Lease{
		ServiceID:  serviceID,
		Holder:     holder,
		Token:      newToken(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(r.ttl),
	}
	value, err := encodeRecord(l)
	if err != nil {
		return nil, err
	}

	ok, err := r.client.SetNX(ctx, r.key(serviceID), value, r.ttl).Result()
	if err != nil {
		return nil, infraError("acquire", err)
	}
	if !ok {
		current, _ := r.Holder(ctx, serviceID)
		return nil, heldError(serviceID, current)
	}

	if err := r.client.Del(ctx, r.abortKey(serviceID)).Err(); err != nil {
		return nil, infraError("clear abort", err)
	}
	return l, nil
}

// Renew implements Manager.
func (r *Redis) Renew(ctx context.Context, l *Lease) error {
	if l == nil {
		return notHeldError(nil)
	}
	value, err := encodeRecord(l)
	if err != nil {
		return err
	}
	n, err := renewScript.Run(ctx, r.client, []string{r.key(l.ServiceID)}, value, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return infraError("renew", err)
	}
	if n == 0 {
		return notHeldError(l)
	}
	l.ExpiresAt = r.clock.Now().Add(r.ttl)
	return nil
}

// Release implements Manager.
func (r *Redis) Release(ctx context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	value, err := encodeRecord(l)
	if err != nil {
		return err
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.key(l.ServiceID)}, value).Err(); err != nil {
		return infraError("release", err)
	}
	return nil
}

// Validate implements Manager.
func (r *Redis) Validate(ctx context.Context, l *Lease) error {
	if l == nil {
		return notHeldError(nil)
	}
	want, err := encodeRecord(l)
	if err != nil {
		return err
	}
	got, err := r.client.Get(ctx, r.key(l.ServiceID)).Result()
	if errors.Is(err, redis.Nil) {
		return notHeldError(l)
	}
	if err != nil {
		return infraError("validate", err)
	}
	if got != want {
		return notHeldError(l)
	}
	return nil
}

// Holder implements Manager.
func (r *Redis) Holder(ctx context.Context, serviceID string) (*Lease, error) {
	value, err := r.client.Get(ctx, r.key(serviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, infraError("get", err)
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, fmt.Errorf("failed to parse lease: %w", err)
	}
	l := &Lease{ServiceID: rec.ServiceID, Holder: rec.Holder, Token: rec.Token, AcquiredAt: rec.AcquiredAt}
	if ttl, err := r.client.PTTL(ctx, r.key(serviceID)).Result(); err == nil && ttl > 0 {
		l.ExpiresAt = r.clock.Now().Add(ttl)
	}
	return l, nil
}

// RequestAbort implements Manager.
func (r *Redis) RequestAbort(ctx context.Context, serviceID, reason string) error {
	if err := validateArgs(serviceID); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.abortKey(serviceID), reason, 0).Err(); err != nil {
		return infraError("request abort", err)
	}
	return nil
}

// AbortRequested implements Manager.
func (r *Redis) AbortRequested(ctx context.Context, serviceID string) (string, bool, error) {
	reason, err := r.client.Get(ctx, r.abortKey(serviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, infraError("read abort", err)
	}
	return reason, true, nil
}

// ClearAbort implements Manager.
func (r *Redis) ClearAbort(ctx context.Context, serviceID string) error {
	if err := r.client.Del(ctx, r.abortKey(serviceID)).Err(); err != nil {
		return infraError("clear abort", err)
	}
	return nil
}

var _ Manager = (*Redis)(nil)
