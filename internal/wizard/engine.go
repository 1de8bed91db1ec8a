package wizard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/logger"
	"github.com/matthewbaird/accountdesk/internal/schema"
)

// Templates is the template registry as the wizard consumes it.
type Templates interface {
	ListNames() []string
	Apply(base directory.Attributes, name string, now time.Time) (directory.Attributes, error)
}

// Accounts is the cached directory view the wizard reads and invalidates.
type Accounts interface {
	Load(ctx context.Context, id string) (*directory.Entity, error)
	InvalidateOne(id string)
	InvalidateList()
	InvalidateAll()
}

// Engine runs wizard transitions. It holds no per-conversation state.
type Engine struct {
	schema    *schema.Schema
	templates Templates
	client    directory.Client
	accounts  Accounts
	now       func() time.Time
	log       *logger.Logger
	metrics   *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *logger.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine wires an engine. Writes go to client; reads and invalidation go
// through accounts.
func NewEngine(s *schema.Schema, t Templates, client directory.Client, accounts Accounts, opts ...Option) *Engine {
	e := &Engine{
		schema:    s,
		templates: t,
		client:    client,
		accounts:  accounts,
		now:       time.Now,
		log:       logger.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With("component", "wizard")
	return e
}

// Schema returns the schema the engine collects.
func (e *Engine) Schema() *schema.Schema { return e.schema }

// StartManual begins a manual creation over the full prompt order.
// Any session in progress is abandoned.
func (e *Engine) StartManual() Step {
	s := Session{
		Mode:          ModeManualCreate,
		State:         StateCollecting,
		PendingFields: e.schema.PromptKeys(),
		Collected:     directory.Attributes{},
		StartedAt:     e.now(),
	}
	return e.prompt(s)
}

// StartTemplate begins a template-driven creation at template selection.
func (e *Engine) StartTemplate() Step {
	s := Session{
		Mode:      ModeTemplateCreate,
		State:     StateTemplateSelect,
		Collected: directory.Attributes{},
		StartedAt: e.now(),
	}
	return Step{Session: s, State: StateTemplateSelect, Templates: e.templates.ListNames()}
}

// ChooseTemplate seeds the session from the named template. With customize
// every field is prompted; without, only the username.
func (e *Engine) ChooseTemplate(s Session, name string, customize bool) Step {
	if s.Current() != StateTemplateSelect {
		return e.stateFailure("no template selection in progress")
	}
	seeded, err := e.templates.Apply(s.Collected, name, e.now())
	if err != nil {
		return Step{
			Session:   s.Clone(),
			State:     StateTemplateSelect,
			Templates: e.templates.ListNames(),
			Failure:   &Failure{Kind: FailValidation, Field: "template", Reason: err.Error()},
		}
	}
	next := s.Clone()
	next.State = StateCollecting
	next.SourceTemplate = name
	next.Collected = seeded
	next.Cursor = 0
	if customize {
		next.PendingFields = e.schema.PromptKeys()
	} else {
		next.PendingFields = []string{schema.FieldUsername}
	}
	return e.prompt(next)
}

// Submit validates raw input for the current field. Invalid input
// re-prompts with the session unchanged. Empty input on an optional field
// leaves it as it was.
func (e *Engine) Submit(ctx context.Context, s Session, raw string) Step {
	if step, ok := e.awaitingInput(s); !ok {
		return step
	}
	f, ok := e.schema.Field(s.CurrentField())
	if !ok {
		return e.stateFailure("unknown field " + s.CurrentField())
	}
	v, err := f.Validate(raw)
	if err != nil {
		step := e.prompt(s.Clone())
		step.Failure = validationFailure(f.Key, err)
		return step
	}

	next := s.Clone()
	if v != nil {
		next.Collected[f.Key] = v
		schema.ApplyDeviceLimitRule(next.Collected)
	}
	next.Cursor++
	return e.advance(ctx, next)
}

// Skip moves past the current field, keeping any template value.
func (e *Engine) Skip(ctx context.Context, s Session) Step {
	if step, ok := e.awaitingInput(s); !ok {
		return step
	}
	next := s.Clone()
	next.Cursor++
	return e.advance(ctx, next)
}

// UseTemplateValue accepts the template's value for the current field.
func (e *Engine) UseTemplateValue(ctx context.Context, s Session) Step {
	if step, ok := e.awaitingInput(s); !ok {
		return step
	}
	key := s.CurrentField()
	if _, ok := s.Collected[key]; !ok || s.SourceTemplate == "" {
		step := e.prompt(s.Clone())
		step.Failure = &Failure{Kind: FailValidation, Field: key, Reason: "no template value for this field"}
		return step
	}
	next := s.Clone()
	next.Cursor++
	return e.advance(ctx, next)
}

// AddOptionalFields appends the optional fields not yet pending and moves
// past the current field.
func (e *Engine) AddOptionalFields(ctx context.Context, s Session) Step {
	if step, ok := e.awaitingInput(s); !ok {
		return step
	}
	next := s.Clone()
	for _, k := range schema.OptionalFields {
		if !slices.Contains(next.PendingFields, k) {
			next.PendingFields = append(next.PendingFields, k)
		}
	}
	next.Cursor++
	return e.advance(ctx, next)
}

// Finish completes the creation now: remaining fields are left to their
// template values or defaults. From Complete it retries a failed submission.
func (e *Engine) Finish(ctx context.Context, s Session) Step {
	switch s.Current() {
	case StateCollecting, StateComplete:
	default:
		return e.stateFailure("no creation in progress")
	}
	next := s.Clone()
	next.Cursor = len(next.PendingFields)
	return e.complete(ctx, next)
}

// Cancel abandons any flow. It never fails.
func (e *Engine) Cancel(s Session) Step {
	if s.Active() {
		e.metrics.cancelled(s.Mode)
		e.log.Debug("wizard cancelled", "mode", s.Mode, "state", s.Current())
	}
	return Step{Session: Session{}, State: StateCancelled}
}

// Resume re-renders the step for a stored session.
func (e *Engine) Resume(ctx context.Context, s Session) Step {
	switch s.Current() {
	case StateCollecting:
		return e.prompt(s.Clone())
	case StateTemplateSelect:
		return Step{Session: s.Clone(), State: StateTemplateSelect, Templates: e.templates.ListNames()}
	case StateEditSelect, StateEditValue:
		return e.editStep(ctx, s.Clone())
	case StateComplete:
		return Step{Session: s.Clone(), State: StateComplete}
	}
	return Step{Session: Session{}, State: StateIdle}
}

func (e *Engine) advance(ctx context.Context, s Session) Step {
	if s.Done() {
		return e.complete(ctx, s)
	}
	return e.prompt(s)
}

// complete fills defaults, enforces the device limit rule, and submits.
// On failure the session is kept at Complete so Finish can retry.
func (e *Engine) complete(ctx context.Context, s Session) Step {
	s.State = StateComplete
	attrs := s.Collected.Clone()
	e.schema.ApplyDefaults(attrs, e.now())

	if p := e.schema.FirstProblem(attrs); p != nil {
		e.metrics.completed("invalid")
		return Step{Session: s, State: StateComplete, Failure: &Failure{Kind: FailValidation, Field: p.Field, Reason: p.Reason}}
	}

	created, err := e.client.Create(ctx, attrs)
	if err != nil {
		e.metrics.completed("remote_error")
		e.log.Warn("account creation failed", "mode", s.Mode, "template", s.SourceTemplate, "error", err)
		return Step{Session: s, State: StateComplete, Failure: remoteFailure(err)}
	}

	e.accounts.InvalidateAll()
	e.metrics.completed("created")
	e.log.Info("account created", "id", created.UUID, "mode", s.Mode, "template", s.SourceTemplate)
	return Step{Session: Session{}, State: StateComplete, Entity: created, Created: true}
}

func (e *Engine) prompt(s Session) Step {
	f, ok := e.schema.Field(s.CurrentField())
	if !ok {
		return e.stateFailure("unknown field " + s.CurrentField())
	}
	p := &Prompt{
		Field:    f.Key,
		Label:    f.Label,
		Kind:     f.Kind,
		Required: f.Required,
		Presets:  f.PresetsAt(e.now()),
		Position: s.Cursor + 1,
		Total:    len(s.PendingFields),
	}
	if v, ok := s.Collected[f.Key]; ok {
		p.Current = v
		p.HasTemplateValue = s.SourceTemplate != ""
	}
	return Step{Session: s, State: StateCollecting, Prompt: p}
}

// awaitingInput reports whether s has a field prompt open. A session whose
// completion failed is handed back unchanged so the collected values
// survive a stray answer.
func (e *Engine) awaitingInput(s Session) (Step, bool) {
	if s.Current() == StateCollecting && !s.Done() {
		return Step{}, true
	}
	if s.Current() == StateComplete {
		return Step{
			Session: s.Clone(),
			State:   StateComplete,
			Failure: &Failure{Kind: FailValidation, Reason: "send finish to retry or cancel"},
		}, false
	}
	return e.stateFailure("no field is awaiting input"), false
}

func (e *Engine) stateFailure(reason string) Step {
	return Step{Session: Session{}, State: StateIdle, Failure: &Failure{Kind: FailState, Reason: reason}}
}

func validationFailure(field string, err error) *Failure {
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		return &Failure{Kind: FailValidation, Field: ve.Field, Reason: ve.Reason}
	}
	return &Failure{Kind: FailValidation, Field: field, Reason: err.Error()}
}

func remoteFailure(err error) *Failure {
	if errors.Is(err, directory.ErrNotFound) {
		return &Failure{Kind: FailNotFound, Reason: "account no longer exists"}
	}
	return &Failure{Kind: FailRemote, Reason: fmt.Sprint(err)}
}
