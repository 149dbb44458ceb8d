// Package flock provides cross-platform file locking utilities.
//
// Exclusive and Unlock are thin non-blocking primitives. Acquire builds a
// context-aware, timeout-bounded lock on top of them and is what the lease
// and incident stores use:
//
//	lock, err := flock.Acquire(ctx, path, constants.LockTimeout)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = lock.Release() }()
package flock
