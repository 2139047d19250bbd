// Package eventbus dispatches named engine events to registered handlers.
// It is a local channel-free bus: handlers run sequentially in priority
// order and their errors never propagate into the pipeline.
package eventbus

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tanaste/tanaste/internal/events"
)

// Event is one published occurrence on the bus.
type Event struct {
	Name       string
	Payload    interface{}
	OccurredAt time.Time
}

// Handler processes events. Handlers are called in priority order (lower
// value first) for the event names they subscribe to.
type Handler interface {
	// ID returns a unique identifier for this handler.
	ID() string

	// Handles returns the event names this handler processes. An empty
	// list subscribes to everything.
	Handles() []string

	// Priority determines call order. Lower values are called first.
	Priority() int

	// Handle processes one event. Returning an error logs a warning but
	// does not stop the handler chain.
	Handle(ctx context.Context, event *Event) error
}

// Bus fans events out to handlers. It satisfies events.Publisher so the
// engine and the harvest dispatcher can publish without knowing about
// handler registration.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

var _ events.Publisher = (*Bus)(nil)

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Register adds a handler. Handlers are sorted by priority on each
// publish, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Handlers returns the registered handlers for status reporting.
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// Publish dispatches the event to every matching handler sequentially.
// Handler errors are logged and swallowed; a cancelled context stops the
// chain.
func (b *Bus) Publish(ctx context.Context, name string, payload interface{}) {
	event := &Event{Name: name, Payload: payload, OccurredAt: time.Now()}

	b.mu.RLock()
	matching := b.matchingHandlers(name)
	b.mu.RUnlock()

	for _, h := range matching {
		if ctx.Err() != nil {
			return
		}
		if err := h.Handle(ctx, event); err != nil {
			log.Printf("eventbus: handler %q error for %s: %v", h.ID(), name, err)
		}
	}
}

// matchingHandlers returns handlers subscribed to the event name, sorted
// by priority (lowest first). Caller holds at least a read lock.
func (b *Bus) matchingHandlers(name string) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		names := h.Handles()
		if len(names) == 0 {
			matched = append(matched, h)
			continue
		}
		for _, n := range names {
			if n == name {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}
