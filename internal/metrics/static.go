package metrics

import (
	"context"
	"sync"

	"github.com/mrz1836/cutover/internal/constants"
)

// StaticProvider returns scripted aggregates. Each environment has its own
// script; every Query consumes one entry and the last entry repeats. An
// environment without a script reads as zero errors and zero latency.
type StaticProvider struct {
	mu       sync.Mutex
	scripts  map[constants.EnvID][]Aggregate
	failures []error
	queries  []Query
}

// NewStaticProvider returns a StaticProvider with no scripts.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{scripts: make(map[constants.EnvID][]Aggregate)}
}

// Script sets the aggregates returned for env.
func (s *StaticProvider) Script(env constants.EnvID, aggs ...Aggregate) *StaticProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[env] = append([]Aggregate(nil), aggs...)
	return s
}

// FailNext queues errors returned by the next queries, one per query.
func (s *StaticProvider) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Queries returns every query received.
func (s *StaticProvider) Queries() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Query(nil), s.queries...)
}

// Query implements Provider.
func (s *StaticProvider) Query(ctx context.Context, q Query) (Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return Aggregate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, q)
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return Aggregate{}, err
	}

	script := s.scripts[q.Env]
	if len(script) == 0 {
		return Aggregate{}, nil
	}
	agg := script[0]
	if len(script) > 1 {
		s.scripts[q.Env] = script[1:]
	}
	return agg, nil
}
