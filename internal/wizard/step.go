package wizard

import (
	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/schema"
)

// FailureKind tags why a step did not advance.
type FailureKind string

const (
	FailValidation FailureKind = "validation"
	FailRemote     FailureKind = "remote"
	FailNotFound   FailureKind = "not_found"
	FailState      FailureKind = "state"
)

// Failure describes a rejected step. Field is set when one attribute is to
// blame.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Field  string      `json:"field,omitempty"`
	Reason string      `json:"reason"`
}

func (f *Failure) Error() string {
	if f.Field != "" {
		return string(f.Kind) + ": " + f.Field + ": " + f.Reason
	}
	return string(f.Kind) + ": " + f.Reason
}

// Prompt is the content needed to ask for one field.
type Prompt struct {
	Field            string          `json:"field"`
	Label            string          `json:"label"`
	Kind             schema.Kind     `json:"kind"`
	Required         bool            `json:"required"`
	Current          any             `json:"current,omitempty"`
	HasTemplateValue bool            `json:"has_template_value,omitempty"`
	Presets          []schema.Preset `json:"presets,omitempty"`
	Position         int             `json:"position"`
	Total            int             `json:"total"`
}

// Step is the outcome of one wizard operation.
type Step struct {
	Session   Session           `json:"-"`
	State     State             `json:"state"`
	Prompt    *Prompt           `json:"prompt,omitempty"`
	Failure   *Failure          `json:"failure,omitempty"`
	Templates []string          `json:"templates,omitempty"`
	Fields    []string          `json:"fields,omitempty"`
	Entity    *directory.Entity `json:"entity,omitempty"`
	// Created is set on the step that created an account.
	Created bool `json:"created,omitempty"`
	// Updated is set on the step that changed an existing account.
	Updated bool `json:"updated,omitempty"`
}
