package desk

import (
	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/wizard"
)

// States a reply can report beyond the wizard's own.
const (
	StateViewing wizard.State = "viewing"
	StateListing wizard.State = "listing"
)

// Failure kinds raised by the desk itself, before the wizard is reached.
const (
	FailForbidden  wizard.FailureKind = "forbidden"
	FailBadRequest wizard.FailureKind = "bad_request"
)

// Failure is the tagged outcome of a rejected command.
type Failure = wizard.Failure

// Reply is everything a transport needs to render the result of one
// command. It carries content, never presentation.
type Reply struct {
	State     wizard.State       `json:"state"`
	Prompt    *wizard.Prompt     `json:"prompt,omitempty"`
	Failure   *Failure           `json:"failure,omitempty"`
	Entity    *directory.Entity  `json:"entity,omitempty"`
	Entities  []directory.Entity `json:"entities,omitempty"`
	Total     int                `json:"total,omitempty"`
	Page      int                `json:"page,omitempty"`
	Pages     int                `json:"pages,omitempty"`
	Templates []string           `json:"templates,omitempty"`
	Fields    []string           `json:"fields,omitempty"`
	Bulk      *BulkSummary       `json:"bulk,omitempty"`
	Devices   []directory.Device `json:"devices,omitempty"`
	Usage     *UsageSummary      `json:"usage,omitempty"`
	Created   bool               `json:"created,omitempty"`
	Updated   bool               `json:"updated,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// BulkSummary reports a bulk run with its failed ids capped for display.
type BulkSummary struct {
	Action    directory.Action `json:"action"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Outcomes  map[string]bool  `json:"outcomes"`
	FailedIDs []string         `json:"failed_ids,omitempty"`
	MoreFails int              `json:"more_failed,omitempty"`
}

func fromStep(step wizard.Step) Reply {
	r := Reply{
		State:     step.State,
		Prompt:    step.Prompt,
		Failure:   step.Failure,
		Entity:    step.Entity,
		Templates: step.Templates,
		Fields:    step.Fields,
		Created:   step.Created,
		Updated:   step.Updated,
	}
	switch {
	case step.Created:
		r.Message = "account created"
	case step.Updated:
		r.Message = "account updated"
	case step.State == wizard.StateCancelled:
		r.Message = "cancelled"
	}
	return r
}

func failed(state wizard.State, kind wizard.FailureKind, field, reason string) Reply {
	return Reply{State: state, Failure: &Failure{Kind: kind, Field: field, Reason: reason}}
}
