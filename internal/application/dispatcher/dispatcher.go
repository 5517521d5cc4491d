// Package dispatcher delivers workflow events to named sinks after the
// change that produced them has been committed.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/admissions-workflow/internal/domain/event"
)

// Dispatcher fans committed workflow events out to sinks. Each sink has its
// own queue, so a sink sees events in publish order and a slow sink never
// delays the publisher or the other sinks.
type Dispatcher interface {
	// Subscribe registers a named sink for an event type; event.TypeAny
	// receives every event
	Subscribe(eventType event.Type, name string, handler Handler)

	// Publish queues evt for every matching sink and returns immediately.
	// Cancellation of ctx does not reach the sinks.
	Publish(ctx context.Context, evt *event.Event)

	// Close stops accepting events and waits until every queued event has
	// been delivered
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type delivery struct {
	ctx context.Context
	evt *event.Event
}

// sink is one subscription with its pending deliveries
type sink struct {
	name      string
	eventType event.Type
	handler   Handler

	mu      sync.Mutex
	pending []delivery
	wake    chan struct{}
}

func (s *sink) matches(t event.Type) bool {
	return s.eventType == event.TypeAny || s.eventType == t
}

func (s *sink) enqueue(d delivery) {
	s.mu.Lock()
	s.pending = append(s.pending, d)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *sink) take() []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch
}

type eventDispatcher struct {
	// mu orders Publish against Close: nothing is enqueued once done is closed
	mu     sync.RWMutex
	sinks  []*sink
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
	logger Logger
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher with no sinks
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{done: make(chan struct{})}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logError("Sink not registered, dispatcher is closed", "event_type", eventType, "sink", name)
		return
	}

	s := &sink{name: name, eventType: eventType, handler: handler, wake: make(chan struct{}, 1)}
	d.sinks = append(d.sinks, s)
	d.wg.Add(1)
	go d.run(s)

	d.logInfo("Sink registered", "event_type", eventType, "sink", name)
}

func (d *eventDispatcher) Publish(ctx context.Context, evt *event.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logError("Event dropped, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"application_id", evt.ApplicationID)
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		if s.matches(evt.Type) {
			s.enqueue(delivery{ctx: ctx, evt: evt})
		}
	}
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	d.logInfo("Closing dispatcher, draining sinks")
	d.wg.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

// run delivers s's queue in order until the dispatcher closes, then drains
// whatever is left.
func (d *eventDispatcher) run(s *sink) {
	defer d.wg.Done()
	for {
		select {
		case <-s.wake:
			d.deliver(s)
		case <-d.done:
			d.deliver(s)
			return
		}
	}
}

func (d *eventDispatcher) deliver(s *sink) {
	for {
		batch := s.take()
		if len(batch) == 0 {
			return
		}
		for _, item := range batch {
			if err := d.safeExecute(item.ctx, s, item.evt); err != nil {
				d.logError("Sink failed",
					"sink", s.name,
					"event_type", item.evt.Type,
					"event_id", item.evt.ID,
					"application_id", item.evt.ApplicationID,
					"error", err)
			}
		}
	}
}

// safeExecute runs the sink handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, s *sink, evt *event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *eventDispatcher) logError(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}
