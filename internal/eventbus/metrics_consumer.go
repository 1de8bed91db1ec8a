package eventbus

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthewbaird/accountdesk/internal/event"
	"github.com/matthewbaird/accountdesk/internal/metrics"
)

// MetricsConsumer counts domain events by type and category.
type MetricsConsumer struct {
	events *prometheus.CounterVec
}

// NewMetricsConsumer creates the consumer and registers its counter.
func NewMetricsConsumer(reg prometheus.Registerer) (*MetricsConsumer, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Domain events dispatched by the bus",
	}, []string{"event_type", "category"})
	if err := reg.Register(events); err != nil {
		return nil, err
	}
	return &MetricsConsumer{events: events}, nil
}

func (c *MetricsConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	c.events.WithLabelValues(evt.EventType, evt.Category).Inc()
	return nil
}
