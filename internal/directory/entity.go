// Package directory models managed accounts and the remote directory API
// that owns them.
package directory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout is the canonical wire form of absolute times.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Account statuses reported by the directory.
const (
	StatusActive   = "ACTIVE"
	StatusDisabled = "DISABLED"
	StatusLimited  = "LIMITED"
	StatusExpired  = "EXPIRED"
)

// Entity is one managed account.
type Entity struct {
	UUID                 string     `json:"uuid"`
	ShortUUID            string     `json:"shortUuid,omitempty"`
	Username             string     `json:"username"`
	Status               string     `json:"status,omitempty"`
	TrafficLimitBytes    int64      `json:"trafficLimitBytes"`
	TrafficLimitStrategy string     `json:"trafficLimitStrategy,omitempty"`
	UsedTrafficBytes     int64      `json:"usedTrafficBytes,omitempty"`
	ExpireAt             *time.Time `json:"expireAt,omitempty"`
	HwidDeviceLimit      *int64     `json:"hwidDeviceLimit,omitempty"`
	Description          string     `json:"description,omitempty"`
	TelegramID           *int64     `json:"telegramId,omitempty"`
	Email                string     `json:"email,omitempty"`
	Tag                  string     `json:"tag,omitempty"`
	SubscriptionURL      string     `json:"subscriptionUrl,omitempty"`
	CreatedAt            *time.Time `json:"createdAt,omitempty"`
}

// Clone returns a deep copy so callers never share pointer fields.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.ExpireAt = cloneTime(e.ExpireAt)
	c.CreatedAt = cloneTime(e.CreatedAt)
	c.HwidDeviceLimit = cloneInt(e.HwidDeviceLimit)
	c.TelegramID = cloneInt(e.TelegramID)
	return &c
}

// Field returns the current value of an editable attribute and whether it is
// present on the account.
func (e *Entity) Field(key string) (any, bool) {
	switch key {
	case "username":
		return e.Username, e.Username != ""
	case "trafficLimitBytes":
		return e.TrafficLimitBytes, true
	case "trafficLimitStrategy":
		return e.TrafficLimitStrategy, e.TrafficLimitStrategy != ""
	case "expireAt":
		if e.ExpireAt == nil {
			return nil, false
		}
		return *e.ExpireAt, true
	case "hwidDeviceLimit":
		if e.HwidDeviceLimit == nil {
			return nil, false
		}
		return *e.HwidDeviceLimit, true
	case "description":
		return e.Description, e.Description != ""
	case "telegramId":
		if e.TelegramID == nil {
			return nil, false
		}
		return *e.TelegramID, true
	case "email":
		return e.Email, e.Email != ""
	case "tag":
		return e.Tag, e.Tag != ""
	}
	return nil, false
}

// SearchableValues returns the string forms of the fields that text search
// matches against, in a fixed order. Absent fields are empty strings.
func (e *Entity) SearchableValues() []string {
	tg := ""
	if e.TelegramID != nil {
		tg = strconv.FormatInt(*e.TelegramID, 10)
	}
	return []string{e.Username, e.Description, e.Email, e.Tag, e.ShortUUID, e.UUID, tg}
}

// Attributes is a partial attribute set keyed by directory field name.
// Values are strings, integers, byte sizes or times.
type Attributes map[string]any

// Clone returns a shallow copy; values are immutable scalars.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// MarshalJSON renders times in the canonical timestamp layout.
func (a Attributes) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a))
	for k, v := range a {
		switch t := v.(type) {
		case time.Time:
			out[k] = t.UTC().Format(TimestampLayout)
		case *time.Time:
			if t != nil {
				out[k] = t.UTC().Format(TimestampLayout)
			}
		default:
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// ApplyTo merges the attributes onto a copy of e using the same JSON
// mapping the remote API uses.
func (a Attributes) ApplyTo(e *Entity) (*Entity, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding attributes: %w", err)
	}
	out := e.Clone()
	if out == nil {
		out = &Entity{}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("applying attributes: %w", err)
	}
	return out, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
