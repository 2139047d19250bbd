package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tanaste/tanaste/internal/eventbus"
)

// EventMetrics counts published engine events by name. It registers on
// the event bus like any other handler; with telemetry disabled the
// counter is a no-op.
type EventMetrics struct {
	counter metric.Int64Counter
}

// NewEventMetrics creates the counter on the global meter.
func NewEventMetrics() (*EventMetrics, error) {
	counter, err := Meter("").Int64Counter(
		"tanaste.events",
		metric.WithDescription("Engine lifecycle events published, by name"),
	)
	if err != nil {
		return nil, err
	}
	return &EventMetrics{counter: counter}, nil
}

func (m *EventMetrics) ID() string        { return "otel-metrics" }
func (m *EventMetrics) Handles() []string { return nil }
func (m *EventMetrics) Priority() int     { return 90 }

func (m *EventMetrics) Handle(ctx context.Context, event *eventbus.Event) error {
	m.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event.Name)))
	return nil
}
