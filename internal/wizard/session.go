// Package wizard drives guided account creation and single-field editing
// across chat turns. Sessions are values: every operation takes the current
// Session and returns the next one inside a Step.
package wizard

import (
	"slices"
	"time"

	"github.com/matthewbaird/accountdesk/internal/directory"
)

// State is the wizard's position in the flow.
type State string

const (
	StateIdle           State = "idle"
	StateTemplateSelect State = "template_select"
	StateCollecting     State = "collecting_field"
	StateComplete       State = "complete"
	StateCancelled      State = "cancelled"
	StateEditSelect     State = "edit_select"
	StateEditValue      State = "edit_value"
)

// Mode is the kind of flow a session runs.
type Mode string

const (
	ModeManualCreate   Mode = "manual_create"
	ModeTemplateCreate Mode = "template_create"
	ModeEditExisting   Mode = "edit_existing"
)

// Session is one conversation's in-progress flow. The zero value is idle.
type Session struct {
	Mode           Mode                 `json:"mode,omitempty"`
	State          State                `json:"state,omitempty"`
	PendingFields  []string             `json:"pending_fields,omitempty"`
	Cursor         int                  `json:"cursor"`
	Collected      directory.Attributes `json:"-"`
	SourceTemplate string               `json:"source_template,omitempty"`
	TargetID       string               `json:"target_id,omitempty"`
	EditField      string               `json:"edit_field,omitempty"`
	StartedAt      time.Time            `json:"started_at,omitempty"`
}

// Current returns the session state, treating the zero value as idle.
func (s Session) Current() State {
	if s.State == "" {
		return StateIdle
	}
	return s.State
}

// Active reports whether a flow is in progress.
func (s Session) Active() bool {
	switch s.Current() {
	case StateIdle, StateCancelled:
		return false
	}
	return true
}

// Done reports whether every pending field has been visited.
func (s Session) Done() bool {
	return s.Cursor >= len(s.PendingFields)
}

// CurrentField returns the key under the cursor, or "" when done.
func (s Session) CurrentField() string {
	if s.Cursor < 0 || s.Done() {
		return ""
	}
	return s.PendingFields[s.Cursor]
}

// Clone returns a copy sharing no mutable state with s.
func (s Session) Clone() Session {
	c := s
	c.PendingFields = slices.Clone(s.PendingFields)
	c.Collected = s.Collected.Clone()
	return c
}
