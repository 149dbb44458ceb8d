package lease

import (
	"context"
	"sync"
	"time"

	"github.com/mrz1836/cutover/internal/clock"
)

// Memory is an in-process Manager. Dry runs and tests use it.
type Memory struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  clock.Clock
	leases map[string]*Lease
	aborts map[string]string
}

// MemoryOption configures a Memory manager.
type MemoryOption func(*Memory)

// WithTTL makes leases expire unless renewed. Zero disables expiry.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithClock sets the clock used for acquisition and expiry times.
func WithClock(c clock.Clock) MemoryOption {
	return func(m *Memory) { m.clock = c }
}

// NewMemory creates an in-process lease manager.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock:  clock.RealClock{},
		leases: make(map[string]*Lease),
		aborts: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) current(serviceID string) *Lease {
	l, ok := m.leases[serviceID]
	if !ok {
		return nil
	}
	if !l.ExpiresAt.IsZero() && !m.clock.Now().Before(l.ExpiresAt) {
		delete(m.leases, serviceID)
		return nil
	}
	return l
}

// Acquire implements Manager.
func (m *Memory) Acquire(ctx context.Context, serviceID, holder string) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateArgs(serviceID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current(serviceID); cur != nil {
		return nil, heldError(serviceID, cur)
	}

	now := m.clock.Now()
	l := &Lease{ServiceID: serviceID, Holder: holder, Token: newToken(), AcquiredAt: now}
	if m.ttl > 0 {
		l.ExpiresAt = now.Add(m.ttl)
	}
	m.leases[serviceID] = l
	delete(m.aborts, serviceID)

	copied := *l
	return &copied, nil
}

// Renew implements Manager.
func (m *Memory) Renew(ctx context.Context, l *Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current(leaseService(l))
	if l == nil || cur == nil || cur.Token != l.Token {
		return notHeldError(l)
	}
	if m.ttl > 0 {
		cur.ExpiresAt = m.clock.Now().Add(m.ttl)
		l.ExpiresAt = cur.ExpiresAt
	}
	return nil
}

// Release implements Manager.
func (m *Memory) Release(_ context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.leases[l.ServiceID]; ok && cur.Token == l.Token {
		delete(m.leases, l.ServiceID)
	}
	return nil
}

// Validate implements Manager.
func (m *Memory) Validate(ctx context.Context, l *Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current(leaseService(l))
	if l == nil || cur == nil || cur.Token != l.Token {
		return notHeldError(l)
	}
	return nil
}

// Holder implements Manager.
func (m *Memory) Holder(_ context.Context, serviceID string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current(serviceID)
	if cur == nil {
		return nil, nil
	}
	copied := *cur
	return &copied, nil
}

// RequestAbort implements Manager.
func (m *Memory) RequestAbort(_ context.Context, serviceID, reason string) error {
	if err := validateArgs(serviceID); err != nil {
		return err
	}
	m.mu.Lock()
	m.aborts[serviceID] = reason
	m.mu.Unlock()
	return nil
}

// AbortRequested implements Manager.
func (m *Memory) AbortRequested(_ context.Context, serviceID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reason, ok := m.aborts[serviceID]
	return reason, ok, nil
}

// ClearAbort implements Manager.
func (m *Memory) ClearAbort(_ context.Context, serviceID string) error {
	m.mu.Lock()
	delete(m.aborts, serviceID)
	m.mu.Unlock()
	return nil
}

func leaseService(l *Lease) string {
	if l == nil {
		return ""
	}
	return l.ServiceID
}

var _ Manager = (*Memory)(nil)
