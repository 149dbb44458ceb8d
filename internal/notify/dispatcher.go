package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cutover/internal/constants"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/retry"
)

// queueSize bounds events waiting for the worker.
const queueSize = 64

// DeliveryObserver is told the final result of every sink delivery.
type DeliveryObserver interface {
	ObserveDelivery(sink string, err error)
}

type route struct {
	sink    Sink
	minimum constants.Severity
}

// Dispatcher queues events and delivers them to every sink whose minimum
// severity the event meets.
type Dispatcher struct {
	logger   zerolog.Logger
	policy   retry.Policy
	timeout  time.Duration
	observer DeliveryObserver

	mu     sync.RWMutex
	routes []route
	closed bool

	queue chan Event
	done  chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPolicy sets the per-sink retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithTimeout bounds each delivery attempt.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithObserver reports delivery results to o.
func WithObserver(o DeliveryObserver) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a Dispatcher and starts its worker.
func NewDispatcher(logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger: logger,
		policy: retry.Policy{
			MaxAttempts:     constants.DefaultNotifyMaxAttempts,
			InitialInterval: constants.DefaultNotifyInitialBackoff,
			MaxInterval:     constants.DefaultNotifyMaxBackoff,
		},
		timeout: constants.DefaultNotifyTimeout,
		queue:   make(chan Event, queueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// Add registers sink for events of at least minimum severity.
func (d *Dispatcher) Add(sink Sink, minimum constants.Severity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{sink: sink, minimum: minimum})
}

// Dispatch queues ev. It blocks only while the queue is full.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return cerrors.ErrDispatcherClosed
	}
	select {
	case d.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	d.mu.RLock()
	routes := append([]route(nil), d.routes...)
	d.mu.RUnlock()

	for _, r := range routes {
		if !AtLeast(ev.Severity, r.minimum) {
			continue
		}
		err := d.send(r.sink, ev)
		if d.observer != nil {
			d.observer.ObserveDelivery(r.sink.Name(), err)
		}
		if err != nil {
			d.logger.Error().Err(err).
				Str("sink", r.sink.Name()).
				Str("service", ev.ServiceID).
				Str("key", ev.Key).
				Msg("notification dropped after retries")
			continue
		}
		d.logger.Debug().Str("sink", r.sink.Name()).Str("key", ev.Key).Msg("notification delivered")
	}
}

// send delivers ev to sink with retries. Deliveries run detached from any
// caller so a cancelled attempt still gets its notifications out.
func (d *Dispatcher) send(sink Sink, ev Event) error {
	notify := func(err error, attempt int, next time.Duration) {
		d.logger.Warn().Err(err).
			Str("sink", sink.Name()).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("notification failed, retrying")
	}
	_, err := retry.Do(context.Background(), d.policy, Retryable, notify, func(ctx context.Context) (struct{}, error) {
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		return struct{}{}, sink.Send(ctx, ev)
	})
	return err
}
