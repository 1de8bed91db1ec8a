package eventbus

import (
	"context"

	"github.com/matthewbaird/accountdesk/internal/event"
	"github.com/matthewbaird/accountdesk/internal/logger"
)

// LogConsumer logs all domain events.
type LogConsumer struct {
	log *logger.Logger
}

func NewLogConsumer(log *logger.Logger) *LogConsumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogConsumer{log: log.With("component", "events")}
}

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	entities := make([]string, len(evt.AffectedEntities))
	for i, ref := range evt.AffectedEntities {
		entities[i] = ref.EntityType + ":" + ref.EntityID
	}
	c.log.Info(evt.Summary,
		"event_type", evt.EventType,
		"category", evt.Category,
		"weight", evt.Weight,
		"actor", evt.Actor,
		"entities", entities,
	)
	return nil
}
