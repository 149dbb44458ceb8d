package notify

import (
	"context"
	"sync"
)

// RecordingSink keeps every event it receives. It can be told to fail.
type RecordingSink struct {
	name string

	mu       sync.Mutex
	events   []Event
	failures []error
	attempts int
}

// NewRecordingSink creates a RecordingSink reporting name.
func NewRecordingSink(name string) *RecordingSink {
	return &RecordingSink{name: name}
}

// Name implements Sink.
func (s *RecordingSink) Name() string { return s.name }

// FailNext makes the next len(errs) sends fail with errs in order.
func (s *RecordingSink) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Send implements Sink.
func (s *RecordingSink) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns the delivered events.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Attempts returns how many sends were made, failed ones included.
func (s *RecordingSink) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
