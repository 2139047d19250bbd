package eventbus

import (
	"context"

	"github.com/tanaste/tanaste/internal/debug"
)

// LogHandler writes every event to the debug log. It runs last so other
// handlers see events first.
type LogHandler struct{}

func (LogHandler) ID() string        { return "log" }
func (LogHandler) Handles() []string { return nil }
func (LogHandler) Priority() int     { return 100 }

func (LogHandler) Handle(_ context.Context, event *Event) error {
	debug.Logf("event: %s %+v\n", event.Name, event.Payload)
	return nil
}

// StreamHandler forwards events into a buffered channel for live
// consumers. When the consumer falls behind, events are dropped rather
// than blocking the publisher.
type StreamHandler struct {
	id    string
	names []string
	ch    chan *Event
}

// NewStreamHandler creates a stream subscribed to the given event names
// (none means all) with the given buffer size.
func NewStreamHandler(id string, buffer int, names ...string) *StreamHandler {
	if buffer <= 0 {
		buffer = 64
	}
	return &StreamHandler{id: id, names: names, ch: make(chan *Event, buffer)}
}

func (s *StreamHandler) ID() string        { return s.id }
func (s *StreamHandler) Handles() []string { return s.names }
func (s *StreamHandler) Priority() int     { return 50 }

// Events is the consumer side of the stream.
func (s *StreamHandler) Events() <-chan *Event { return s.ch }

func (s *StreamHandler) Handle(_ context.Context, event *Event) error {
	select {
	case s.ch <- event:
	default:
		debug.Logf("eventbus: stream %s full, dropped %s\n", s.id, event.Name)
	}
	return nil
}
