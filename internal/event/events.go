package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/types"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string
	EventType        string
	OccurredAt       time.Time
	Actor            string
	AffectedEntities []types.SourceRef
	Summary          string
	Category         string // "lifecycle", "access", "usage", "profile"
	Weight           string // "major", "minor", "info"
	Payload          json.RawMessage
}

// Event types.
const (
	AccountCreated             = "account_created"
	AccountUpdated             = "account_updated"
	AccountEnabled             = "account_enabled"
	AccountDisabled            = "account_disabled"
	AccountTrafficReset        = "account_traffic_reset"
	AccountSubscriptionRevoked = "account_subscription_revoked"
	AccountDeleted             = "account_deleted"
	AccountDeviceAdded         = "account_device_added"
	AccountDeviceRemoved       = "account_device_removed"
)

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func base(eventType, accountID, actor string) DomainEvent {
	refs := []types.SourceRef{{EntityType: types.EntityAccount, EntityID: accountID, Role: types.RoleSubject}}
	return DomainEvent{
		ID:               newID(),
		EventType:        eventType,
		OccurredAt:       time.Now().UTC(),
		Actor:            actor,
		AffectedEntities: refs,
	}
}

// CreatedPayload carries event-specific data for AccountCreated.
type CreatedPayload struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Template  string `json:"template,omitempty"`
}

func NewAccountCreated(e *directory.Entity, template, actor string) DomainEvent {
	evt := base(AccountCreated, e.UUID, actor)
	evt.Summary = fmt.Sprintf("Account %s created", e.Username)
	if template != "" {
		evt.Summary += " from template " + template
	}
	evt.Category = "lifecycle"
	evt.Weight = "major"
	evt.Payload = mustJSON(CreatedPayload{AccountID: e.UUID, Username: e.Username, Template: template})
	return evt
}

// UpdatedPayload carries the submitted field changes.
type UpdatedPayload struct {
	AccountID string               `json:"account_id"`
	Changes   directory.Attributes `json:"changes"`
}

func NewAccountUpdated(id string, changes directory.Attributes, actor string) DomainEvent {
	evt := base(AccountUpdated, id, actor)
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	evt.Summary = fmt.Sprintf("Account %s updated: %v", short(id), keys)
	evt.Category = "profile"
	evt.Weight = "minor"
	evt.Payload = mustJSON(UpdatedPayload{AccountID: id, Changes: changes})
	return evt
}

// ActionPayload carries the account a direct action touched.
type ActionPayload struct {
	AccountID string `json:"account_id"`
	Action    string `json:"action"`
	Bulk      bool   `json:"bulk,omitempty"`
}

// NewAccountAction builds the event for a single-id state operation.
func NewAccountAction(a directory.Action, id, actor string, bulk bool) DomainEvent {
	var (
		eventType, verb, category, weight string
	)
	switch a {
	case directory.ActionEnable:
		eventType, verb, category, weight = AccountEnabled, "enabled", "access", "major"
	case directory.ActionDisable:
		eventType, verb, category, weight = AccountDisabled, "disabled", "access", "major"
	case directory.ActionResetTraffic:
		eventType, verb, category, weight = AccountTrafficReset, "had traffic reset", "usage", "minor"
	case directory.ActionRevoke:
		eventType, verb, category, weight = AccountSubscriptionRevoked, "had subscription revoked", "access", "major"
	case directory.ActionDelete:
		eventType, verb, category, weight = AccountDeleted, "deleted", "lifecycle", "major"
	default:
		eventType, verb, category, weight = "account_"+string(a), string(a), "lifecycle", "info"
	}
	evt := base(eventType, id, actor)
	evt.Summary = fmt.Sprintf("Account %s %s", short(id), verb)
	evt.Category = category
	evt.Weight = weight
	evt.Payload = mustJSON(ActionPayload{AccountID: id, Action: string(a), Bulk: bulk})
	return evt
}

// DevicePayload carries the hardware id a device change touched.
type DevicePayload struct {
	AccountID string `json:"account_id"`
	HWID      string `json:"hwid"`
}

// NewDeviceChange builds the event for binding or unbinding a hardware id.
func NewDeviceChange(id, hwid, actor string, added bool) DomainEvent {
	eventType, verb := AccountDeviceRemoved, "removed"
	if added {
		eventType, verb = AccountDeviceAdded, "added"
	}
	evt := base(eventType, id, actor)
	evt.Summary = fmt.Sprintf("Account %s device %s %s", short(id), hwid, verb)
	evt.Category = "access"
	evt.Weight = "minor"
	evt.Payload = mustJSON(DevicePayload{AccountID: id, HWID: hwid})
	return evt
}
