// Package traffic sets the traffic split between a service's blue and green
// environments.
//
// Every write replaces both weights in one routing-object update, so no
// observer ever sees a state that does not sum to 100. Writes require the
// service lease. While a forward shift is open for a service, the candidate's
// weight may only grow; lowering it is reserved for the Reverter handed to
// the rollback path.
package traffic

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/lease"
	"github.com/mrz1836/cutover/internal/orchestration"
)

// Observer is told about every routing state the controller writes.
type Observer interface {
	ObserveWeights(serviceID string, weights domain.Weights)
}

type shift struct {
	candidate constants.EnvID
	weight    int
}

// Controller writes traffic weights.
type Controller struct {
	client   orchestration.Client
	leases   lease.Manager
	logger   zerolog.Logger
	observer Observer

	mu       sync.Mutex
	sessions map[string]*shift
	locks    map[string]*sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers o for every successful write.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// NewController creates a Controller.
func NewController(client orchestration.Client, leases lease.Manager, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		client:   client,
		leases:   leases,
		logger:   logger,
		sessions: make(map[string]*shift),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateWeights checks that weights name exactly blue and green, each in
// 0..100, summing to 100.
func ValidateWeights(weights domain.Weights) error {
	if len(weights) != len(constants.AllEnvs()) {
		return cerrors.Mark(fmt.Errorf("expected weights for blue and green, got %d entries: %w", len(weights), cerrors.ErrInvalidWeights), cerrors.ErrValidation)
	}
	for _, env := range constants.AllEnvs() {
		w, ok := weights[env]
		if !ok {
			return cerrors.Mark(fmt.Errorf("missing weight for %s: %w", env, cerrors.ErrInvalidWeights), cerrors.ErrValidation)
		}
		if w < 0 || w > 100 {
			return cerrors.Mark(fmt.Errorf("weight %d for %s outside 0..100: %w", w, env, cerrors.ErrInvalidWeights), cerrors.ErrValidation)
		}
	}
	if sum := weights.Sum(); sum != 100 {
		return cerrors.Mark(fmt.Errorf("weights sum to %d: %w", sum, cerrors.ErrInvalidWeights), cerrors.ErrValidation)
	}
	return nil
}

// BeginShift opens a forward shift toward candidate. Until EndShift or a
// revert, SetWeights rejects any write lowering the candidate's weight.
func (c *Controller) BeginShift(serviceID string, candidate constants.EnvID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[serviceID] = &shift{candidate: candidate}
}

// EndShift closes the forward shift for serviceID.
func (c *Controller) EndShift(serviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, serviceID)
}

// Shifting reports the open shift's candidate for serviceID, if any.
func (c *Controller) Shifting(serviceID string) (constants.EnvID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[serviceID]
	if !ok {
		return "", false
	}
	return s.candidate, true
}

// SetWeights replaces the routing weights of serviceID in a single write.
// The caller must hold l, the service's current lease.
func (c *Controller) SetWeights(ctx context.Context, l *lease.Lease, serviceID string, weights domain.Weights) (domain.RoutingState, error) {
	return c.write(ctx, l, serviceID, weights, false)
}

// Reverter returns the capability to move traffic back, bypassing the
// forward-shift guard. Only the rollback path should hold it.
func (c *Controller) Reverter() *Reverter {
	return &Reverter{c: c}
}

func (c *Controller) write(ctx context.Context, l *lease.Lease, serviceID string, weights domain.Weights, revert bool) (domain.RoutingState, error) {
	if err := ValidateWeights(weights); err != nil {
		return domain.RoutingState{}, err
	}
	if err := c.checkLease(ctx, l, serviceID); err != nil {
		return domain.RoutingState{}, err
	}

	lock := c.serviceLock(serviceID)
	lock.Lock()
	defer lock.Unlock()

	if !revert {
		if err := c.checkShift(serviceID, weights); err != nil {
			return domain.RoutingState{}, err
		}
	}

	state, err := c.client.PatchWeights(ctx, serviceID, weights)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("service", serviceID).
			Int("blue", weights[constants.EnvBlue]).
			Int("green", weights[constants.EnvGreen]).
			Msg("failed to set traffic weights")
		return domain.RoutingState{}, fmt.Errorf("failed to set weights for service '%s': %w", serviceID, err)
	}

	c.mu.Lock()
	if revert {
		delete(c.sessions, serviceID)
	} else if s, ok := c.sessions[serviceID]; ok {
		s.weight = weights[s.candidate]
	}
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.ObserveWeights(serviceID, state.Weights)
	}
	c.logger.Info().
		Str("service", serviceID).
		Int("blue", state.Weights[constants.EnvBlue]).
		Int("green", state.Weights[constants.EnvGreen]).
		Str("revision", state.Revision).
		Bool("revert", revert).
		Msg("traffic weights set")
	return state, nil
}

func (c *Controller) checkLease(ctx context.Context, l *lease.Lease, serviceID string) error {
	if l == nil {
		return cerrors.Mark(fmt.Errorf("service '%s': %w", serviceID, cerrors.ErrLeaseNotHeld), cerrors.ErrConflict)
	}
	if l.ServiceID != serviceID {
		return cerrors.Mark(fmt.Errorf("lease is for service '%s', not '%s': %w", l.ServiceID, serviceID, cerrors.ErrLeaseNotHeld), cerrors.ErrConflict)
	}
	return c.leases.Validate(ctx, l)
}

func (c *Controller) checkShift(serviceID string, weights domain.Weights) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[serviceID]
	if !ok {
		return nil
	}
	if next := weights[s.candidate]; next < s.weight {
		return cerrors.Mark(fmt.Errorf("%s weight %d -> %d: %w", s.candidate, s.weight, next, cerrors.ErrWeightDecrease), cerrors.ErrValidation)
	}
	return nil
}

func (c *Controller) serviceLock(serviceID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[serviceID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[serviceID] = l
	}
	return l
}

// Reverter moves all traffic back to one environment.
type Reverter struct {
	c *Controller
}

// Revert routes 100 to `to` and 0 to the other environment in one write and
// closes any open shift. Repeating it converges on the same state.
func (r *Reverter) Revert(ctx context.Context, l *lease.Lease, serviceID string, to constants.EnvID) (domain.RoutingState, error) {
	if !to.Valid() {
		return domain.RoutingState{}, cerrors.Mark(fmt.Errorf("revert target %q: %w", to, cerrors.ErrUnknownEnvironment), cerrors.ErrValidation)
	}
	return r.c.write(ctx, l, serviceID, domain.Split(to, 100), true)
}
