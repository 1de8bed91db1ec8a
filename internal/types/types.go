// Package types holds the value types shared by the audit trail packages.
package types

import (
	"encoding/json"
	"time"
)

// EntityAccount is the only entity type the desk records activity for.
const EntityAccount = "account"

// Entity roles within an event.
const (
	RoleSubject = "subject"
	RoleActor   = "actor"
)

// SourceRef identifies an entity referenced by a domain event.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"`
}

// ActivityEntry is one domain event indexed under one referenced entity.
// One event produces an entry per affected entity.
type ActivityEntry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Actor             string          `json:"actor,omitempty"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"`
	Weight            string          `json:"weight"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}
