// Package rollout runs deployment attempts.
//
// This file implements the attempt state machine, which enforces valid state
// transitions and keeps the transition history of every attempt.
package rollout

import (
	"fmt"
	"slices"
	"time"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// ValidTransitions defines all allowed state transitions of an attempt.
// Format: from_state -> []to_states
//
// The state machine follows this flow:
//
//	Idle → ResolvingEnvironment
//	ResolvingEnvironment → Deploying, Aborted
//	Deploying → HealthGating, Aborted
//	HealthGating → SmokeTesting, Aborted
//	SmokeTesting → TrafficShifting, Aborted
//	TrafficShifting → Completed, RollingBack, Aborted
//	RollingBack → RolledBack, CriticalEscalation
//
// TrafficShifting → Aborted is only taken when the first stage never
// changed routing.
//
//nolint:gochecknoglobals // Read-only lookup table
var ValidTransitions = map[constants.AttemptState][]constants.AttemptState{
	constants.StateIdle:                 {constants.StateResolvingEnvironment},
	constants.StateResolvingEnvironment: {constants.StateDeploying, constants.StateAborted},
	constants.StateDeploying:            {constants.StateHealthGating, constants.StateAborted},
	constants.StateHealthGating:         {constants.StateSmokeTesting, constants.StateAborted},
	constants.StateSmokeTesting:         {constants.StateTrafficShifting, constants.StateAborted},
	constants.StateTrafficShifting:      {constants.StateCompleted, constants.StateRollingBack, constants.StateAborted},
	constants.StateRollingBack:          {constants.StateRolledBack, constants.StateCriticalEscalation},
}

// outcomes maps terminal states to the attempt outcome.
//
//nolint:gochecknoglobals // Read-only lookup table
var outcomes = map[constants.AttemptState]constants.Outcome{
	constants.StateCompleted:          constants.OutcomeSucceeded,
	constants.StateAborted:            constants.OutcomeFailed,
	constants.StateRolledBack:         constants.OutcomeRolledBack,
	constants.StateCriticalEscalation: constants.OutcomeFailed,
}

// IsValidTransition checks if a transition from one state to another is allowed.
func IsValidTransition(from, to constants.AttemptState) bool {
	if from == to {
		return false
	}
	return slices.Contains(ValidTransitions[from], to)
}

// IsTerminal returns true for states with no outgoing transitions.
func IsTerminal(state constants.AttemptState) bool {
	_, ok := outcomes[state]
	return ok
}

// Transition validates and applies a state change to a, recording it in the
// transition history. Entering a terminal state sets Outcome and CompletedAt.
func Transition(a *domain.DeploymentAttempt, to constants.AttemptState, reason string, now time.Time) error {
	if a == nil {
		return fmt.Errorf("%w: attempt is nil", cerrors.ErrInvalidTransition)
	}
	from := a.State
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", cerrors.ErrInvalidTransition, from, to)
	}

	now = now.UTC()
	a.Transitions = append(a.Transitions, domain.Transition{
		From:      from,
		To:        to,
		Timestamp: now,
		Reason:    reason,
	})
	a.State = to
	if outcome, ok := outcomes[to]; ok {
		a.Outcome = outcome
		a.CompletedAt = &now
	}
	return nil
}
