package errors

import (
	"errors"
	"fmt"
)

// Wrap adds context to errors at package boundaries.
// It returns nil if err is nil, allowing for safe inline usage:
//
//	if err := client.PatchWeights(ctx, svc, weights); err != nil {
//	    return errors.Wrap(err, "failed to patch routing")
//	}
//
// The original chain is preserved so errors.Is() keeps working.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context to errors at package boundaries.
// It returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}

// Mark attaches a failure class to err so that errors.Is(result, class)
// holds while the original chain stays reachable. Returns nil if err is nil.
func Mark(err, class error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, class) {
		return err
	}
	return fmt.Errorf("%w: %w", class, err)
}
