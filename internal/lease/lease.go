// Package lease enforces a single writer per service.
//
// Every mutation of a service's routing (rollout stages, rollbacks, manual
// rollbacks) happens while holding that service's lease. A second caller is
// rejected with an error wrapping cerrors.ErrConflict. The lease store also
// carries operator abort requests, which a running attempt checks at its
// checkpoints.
//
// Three backends exist: Memory for a single process, File for one host
// (flock), and Redis for controllers running on several hosts.
package lease

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// Lease is proof of exclusive write access to one service.
type Lease struct {
	ServiceID  string    `json:"service_id"`
	Holder     string    `json:"holder"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`

	// ExpiresAt is zero for backends without expiry.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Manager grants and checks service leases.
type Manager interface {
	// Acquire grants the lease or fails with ErrLeaseHeld (class ErrConflict).
	// A stale abort request left for the service is cleared on success.
	Acquire(ctx context.Context, serviceID, holder string) (*Lease, error)

	// Renew extends an expiring lease. It fails with ErrLeaseNotHeld if the
	// lease was lost.
	Renew(ctx context.Context, l *Lease) error

	// Release gives the lease up. Releasing a lease that is no longer held is not an error.
	Release(ctx context.Context, l *Lease) error

	// Validate fails with ErrLeaseNotHeld (class ErrConflict) unless l is the
	// current lease for its service.
	Validate(ctx context.Context, l *Lease) error

	// Holder returns the current lease for serviceID, or nil when free.
	Holder(ctx context.Context, serviceID string) (*Lease, error)

	// RequestAbort files an operator abort request for serviceID.
	RequestAbort(ctx context.Context, serviceID, reason string) error

	// AbortRequested reports a pending abort request and its reason.
	AbortRequested(ctx context.Context, serviceID string) (string, bool, error)

	// ClearAbort removes a pending abort request.
	ClearAbort(ctx context.Context, serviceID string) error
}

// DefaultHolder identifies this process as a lease holder.
func DefaultHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

func newToken() string {
	return uuid.NewString()
}

func heldError(serviceID string, current *Lease) error {
	holder := "another controller"
	if current != nil && current.Holder != "" {
		holder = current.Holder
	}
	return fmt.Errorf("lease for service '%s' is held by %s: %w",
		serviceID, holder, cerrors.Mark(cerrors.ErrLeaseHeld, cerrors.ErrConflict))
}

func notHeldError(l *Lease) error {
	if l == nil {
		return cerrors.Mark(fmt.Errorf("no lease presented: %w", cerrors.ErrLeaseNotHeld), cerrors.ErrConflict)
	}
	return fmt.Errorf("lease %s for service '%s' is not held: %w",
		l.Token, l.ServiceID, cerrors.Mark(cerrors.ErrLeaseNotHeld, cerrors.ErrConflict))
}

func validateArgs(serviceID string) error {
	if serviceID == "" {
		return fmt.Errorf("service id: %w", cerrors.ErrEmptyValue)
	}
	return nil
}
