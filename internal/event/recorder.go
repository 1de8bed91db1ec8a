// Package event records account mutations. Each domain event becomes one or
// more activity entries in the activity.Store and is then published to the
// in-process event bus.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/matthewbaird/accountdesk/internal/activity"
	"github.com/matthewbaird/accountdesk/internal/schema"
	"github.com/matthewbaird/accountdesk/internal/types"
)

// Recorder writes domain events to the activity store.
type Recorder interface {
	Record(ctx context.Context, evt DomainEvent) error
}

// Publisher sends domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// ActivityRecorder implements Recorder on an activity.Store. Updates fan out
// to one entry per changed field so a feed filtered by category shows an
// expiry change as lifecycle and a tag change as profile. Every other event
// yields one entry per affected account.
type ActivityRecorder struct {
	store activity.Store
	bus   Publisher
}

// NewActivityRecorder creates a new ActivityRecorder backed by the given store.
func NewActivityRecorder(store activity.Store) *ActivityRecorder {
	return &ActivityRecorder{store: store}
}

// SetPublisher attaches an event bus.
func (r *ActivityRecorder) SetPublisher(p Publisher) {
	r.bus = p
}

func (r *ActivityRecorder) Record(ctx context.Context, evt DomainEvent) error {
	var entries []types.ActivityEntry
	for _, ref := range evt.AffectedEntities {
		if ref.EntityID == "" {
			continue
		}
		if evt.EventType == AccountUpdated {
			fieldEntries, err := fieldEntries(evt, ref)
			if err != nil {
				return err
			}
			entries = append(entries, fieldEntries...)
			continue
		}
		entries = append(entries, entryFor(evt, ref))
	}
	if err := r.store.WriteEntries(ctx, entries); err != nil {
		return err
	}
	if r.bus != nil {
		r.bus.Publish(ctx, evt)
	}
	return nil
}

func entryFor(evt DomainEvent, ref types.SourceRef) types.ActivityEntry {
	return types.ActivityEntry{
		EventID:           evt.ID,
		EventType:         evt.EventType,
		OccurredAt:        evt.OccurredAt,
		IndexedEntityType: ref.EntityType,
		IndexedEntityID:   ref.EntityID,
		EntityRole:        ref.Role,
		SourceRefs:        evt.AffectedEntities,
		Actor:             evt.Actor,
		Summary:           evt.Summary,
		Category:          evt.Category,
		Weight:            evt.Weight,
		Payload:           evt.Payload,
	}
}

// FieldChangePayload is the payload of one per-field update entry.
type FieldChangePayload struct {
	AccountID string          `json:"account_id"`
	Field     string          `json:"field"`
	Value     json.RawMessage `json:"value"`
}

// fieldEntries splits an update into one entry per changed field. Entry ids
// are the event id suffixed with the field so a replay stays idempotent.
func fieldEntries(evt DomainEvent, ref types.SourceRef) ([]types.ActivityEntry, error) {
	var p struct {
		AccountID string                     `json:"account_id"`
		Changes   map[string]json.RawMessage `json:"changes"`
	}
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return nil, fmt.Errorf("decoding update payload: %w", err)
	}
	if len(p.Changes) == 0 {
		return []types.ActivityEntry{entryFor(evt, ref)}, nil
	}
	fields := make([]string, 0, len(p.Changes))
	for f := range p.Changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	out := make([]types.ActivityEntry, 0, len(fields))
	for _, f := range fields {
		value := p.Changes[f]
		e := entryFor(evt, ref)
		e.EventID = evt.ID + "/" + f
		e.Summary = fmt.Sprintf("Account %s %s changed to %s", short(ref.EntityID), f, strings.Trim(string(value), `"`))
		e.Category, e.Weight = fieldClass(f)
		e.Payload = mustJSON(FieldChangePayload{AccountID: ref.EntityID, Field: f, Value: value})
		out = append(out, e)
	}
	return out, nil
}

// fieldClass files a changed field under the category its effect belongs to.
func fieldClass(field string) (category, weight string) {
	switch field {
	case schema.FieldExpireAt:
		return "lifecycle", "major"
	case schema.FieldTrafficLimit, schema.FieldTrafficStrategy:
		return "usage", "minor"
	case schema.FieldDeviceLimit:
		return "access", "minor"
	}
	return "profile", "minor"
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, DomainEvent) error { return nil }
