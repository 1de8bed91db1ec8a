// Package eventbus provides an in-process pub/sub event bus for domain events.
// Mutations publish after the activity write; subscribers process events
// asynchronously on one consumer goroutine.
package eventbus

import (
	"context"
	"sync"

	"github.com/matthewbaird/accountdesk/internal/event"
	"github.com/matthewbaird/accountdesk/internal/logger"
)

// Handler processes a domain event. Implementations must be safe for
// concurrent calls from different goroutines.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.DomainEvent) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.DomainEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return f(ctx, evt)
}

// Bus is a simple in-process event bus. Events are published to a buffered
// channel and dispatched to all subscribers in a single consumer goroutine,
// so processing is serialised.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler
	events      chan event.DomainEvent
	done        chan struct{}
	log         *logger.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// New creates a new Bus with the given channel buffer size.
func New(bufSize int, log *logger.Logger) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{
		events: make(chan event.DomainEvent, bufSize),
		done:   make(chan struct{}),
		log:    log.With("component", "eventbus"),
	}
}

// Subscribe registers a named handler. Must be called before Run.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish sends an event to the bus. Non-blocking: if the buffer is full
// the event is dropped and a warning is logged.
func (b *Bus) Publish(_ context.Context, evt event.DomainEvent) {
	select {
	case b.events <- evt:
	default:
		b.log.Warn("buffer full, dropping event", "event_type", evt.EventType, "event_id", evt.ID)
	}
}

// Run processes events until ctx is cancelled, then drains what is left
// in the buffer and returns.
func (b *Bus) Run(ctx context.Context) error {
	defer close(b.done)
	for {
		select {
		case evt := <-b.events:
			b.dispatch(ctx, evt)
		case <-ctx.Done():
			for {
				select {
				case evt := <-b.events:
					b.dispatch(context.WithoutCancel(ctx), evt)
				default:
					return nil
				}
			}
		}
	}
}

// Start runs the consumer on its own goroutine.
func (b *Bus) Start(ctx context.Context) {
	go func() { _ = b.Run(ctx) }()
}

// Wait blocks until the consumer has drained and exited.
func (b *Bus) Wait() {
	<-b.done
}

func (b *Bus) dispatch(ctx context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.log.Error("handler failed", "handler", s.name, "event_type", evt.EventType, "error", err)
		}
	}
}
