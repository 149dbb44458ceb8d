package orchestration

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// Operation names used for call counting and failure injection.
const (
	OpApply        = "apply"
	OpGetStatus    = "get_status"
	OpGetRouting   = "get_routing"
	OpPatchWeights = "patch_weights"
)

type workloadKey struct {
	service string
	env     constants.EnvID
}

type memWorkload struct {
	spec  domain.WorkloadSpec
	polls int
}

// MemoryClient is an in-process Client. It records every call and every
// routing state it stores, and lets tests inject failures and slow rollouts.
// It is safe for concurrent use.
type MemoryClient struct {
	mu         sync.Mutex
	workloads  map[workloadKey]*memWorkload
	routing    map[string]domain.RoutingState
	history    map[string][]domain.Weights
	calls      map[string]int
	failures   map[string][]error
	readyAfter map[workloadKey]int
	hooks      map[string][]func()
	revision   int64
}

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		workloads:  make(map[workloadKey]*memWorkload),
		routing:    make(map[string]domain.RoutingState),
		history:    make(map[string][]domain.Weights),
		calls:      make(map[string]int),
		failures:   make(map[string][]error),
		readyAfter: make(map[workloadKey]int),
		hooks:      make(map[string][]func()),
	}
}

// SeedRouting stores weights for serviceID without counting a call.
// The seeded state is the first entry of History.
func (m *MemoryClient) SeedRouting(serviceID string, weights domain.Weights) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeLocked(serviceID, weights)
}

// SetReadyAfter makes the workload for env report ready only after polls
// status reads following its last Apply. A negative value never becomes ready.
func (m *MemoryClient) SetReadyAfter(serviceID string, env constants.EnvID, polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyAfter[workloadKey{serviceID, env}] = polls
}

// FailNext queues errors returned by the next calls to op, one per call.
func (m *MemoryClient) FailNext(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], errs...)
}

// OnCall registers fn to run at the start of every call to op, outside the lock.
func (m *MemoryClient) OnCall(op string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[op] = append(m.hooks[op], fn)
}

// Calls returns how many times op was invoked.
func (m *MemoryClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (m *MemoryClient) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// History returns every routing state stored for serviceID in order.
func (m *MemoryClient) History(serviceID string) []domain.Weights {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Weights, 0, len(m.history[serviceID]))
	for _, w := range m.history[serviceID] {
		out = append(out, w.Clone())
	}
	return out
}

// Workload returns the last applied spec for env.
func (m *MemoryClient) Workload(serviceID string, env constants.EnvID) (domain.WorkloadSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workloads[workloadKey{serviceID, env}]
	if !ok {
		return domain.WorkloadSpec{}, false
	}
	return w.spec, true
}

// Apply implements Client.
func (m *MemoryClient) Apply(_ context.Context, spec domain.WorkloadSpec) error {
	if err := m.begin(OpApply); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workloads[workloadKey{spec.ServiceID, spec.Env}] = &memWorkload{spec: spec}
	return nil
}

// GetStatus implements Client.
func (m *MemoryClient) GetStatus(_ context.Context, serviceID string, env constants.EnvID) (domain.WorkloadStatus, error) {
	if err := m.begin(OpGetStatus); err != nil {
		return domain.WorkloadStatus{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workloadKey{serviceID, env}
	w, ok := m.workloads[key]
	if !ok {
		return domain.WorkloadStatus{
			Name:    serviceID + "-" + env.String(),
			Message: "workload not found",
		}, nil
	}

	w.polls++
	desired := w.spec.Replicas
	if desired < 1 {
		desired = 1
	}
	status := domain.WorkloadStatus{Name: w.spec.Name, DesiredReplicas: desired}

	after := m.readyAfter[key]
	if after < 0 || w.polls <= after {
		status.Message = fmt.Sprintf("waiting for rollout (poll %d)", w.polls)
		return status, nil
	}
	status.ReadyReplicas = desired
	status.UpdatedReplicas = desired
	status.Ready = true
	return status, nil
}

// GetRouting implements Client.
func (m *MemoryClient) GetRouting(_ context.Context, serviceID string) (domain.RoutingState, error) {
	if err := m.begin(OpGetRouting); err != nil {
		return domain.RoutingState{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.routing[serviceID]
	if !ok {
		return domain.RoutingState{}, fmt.Errorf("service '%s': %w", serviceID, cerrors.ErrRoutingObjectMissing)
	}
	state.Weights = state.Weights.Clone()
	return state, nil
}

// PatchWeights implements Client. Both weights are replaced under one lock.
func (m *MemoryClient) PatchWeights(_ context.Context, serviceID string, weights domain.Weights) (domain.RoutingState, error) {
	if err := m.begin(OpPatchWeights); err != nil {
		return domain.RoutingState{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeLocked(serviceID, weights), nil
}

func (m *MemoryClient) storeLocked(serviceID string, weights domain.Weights) domain.RoutingState {
	m.revision++
	state := domain.RoutingState{
		ServiceID: serviceID,
		Weights:   weights.Clone(),
		Revision:  strconv.FormatInt(m.revision, 10),
	}
	m.routing[serviceID] = state
	m.history[serviceID] = append(m.history[serviceID], weights.Clone())

	out := state
	out.Weights = state.Weights.Clone()
	return out
}

// begin counts the call, runs hooks and pops an injected failure.
func (m *MemoryClient) begin(op string) error {
	m.mu.Lock()
	m.calls[op]++
	hooks := append([]func(){}, m.hooks[op]...)
	var err error
	if queued := m.failures[op]; len(queued) > 0 {
		err = queued[0]
		m.failures[op] = queued[1:]
	}
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return err
}
