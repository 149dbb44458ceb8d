// Package testutil provides testing utilities for cutover.
//
// It holds mock errors and an HTTP probe server shared by package tests.
// Only test files should import it.
package testutil

import "errors"

// Mock errors that stand in for infrastructure failures in tests.
var (
	// ErrMockAPIError is a failing orchestration API call.
	ErrMockAPIError = errors.New("API error")

	// ErrMockNetwork is a dropped connection.
	ErrMockNetwork = errors.New("network error")

	// ErrMockMetricsUnavailable is a metrics backend outage.
	ErrMockMetricsUnavailable = errors.New("metrics backend unavailable")
)
