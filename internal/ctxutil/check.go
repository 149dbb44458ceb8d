// Package ctxutil provides context utility functions.
package ctxutil

import (
	"context"
	"time"
)

// Canceled returns the context error if ctx is done, nil otherwise.
// Used at function entry points and checkpoint boundaries.
func Canceled(ctx context.Context) error {
	return ctx.Err()
}

// Detached returns a context that keeps the values of parent but is not
// canceled with it, bounded by its own timeout. Recovery work such as a
// rollback runs on it so that an interrupted parent still leaves traffic in
// a safe state.
func Detached(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
