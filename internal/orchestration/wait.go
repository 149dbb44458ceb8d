package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// WaitReady polls the status of env's workload every interval until it is
// ready or ctx ends. The caller bounds the wait with ctx. Expiry returns the
// last observed status and an error wrapping errors.ErrWorkloadNotReady.
func WaitReady(ctx context.Context, c Client, serviceID string, env constants.EnvID, interval time.Duration) (domain.WorkloadStatus, error) {
	if interval <= 0 {
		interval = constants.DefaultStatusPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last domain.WorkloadStatus
	for {
		status, err := c.GetStatus(ctx, serviceID, env)
		if err != nil && ctx.Err() == nil {
			return last, err
		}
		if err == nil {
			last = status
			if status.Ready {
				return status, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, cerrors.Mark(
				fmt.Errorf("%s %s (%s): %w", serviceID, env, last.Message, cerrors.ErrWorkloadNotReady),
				cerrors.ErrGateFailure,
			)
		case <-ticker.C:
		}
	}
}
