package wizard

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/schema"
)

// StartEdit opens an edit session on an existing account and lists the
// fields it currently carries.
func (e *Engine) StartEdit(ctx context.Context, id string) Step {
	ent, err := e.accounts.Load(ctx, id)
	if err != nil {
		return Step{Session: Session{}, State: StateIdle, Failure: remoteFailure(err)}
	}
	s := Session{
		Mode:          ModeEditExisting,
		State:         StateEditSelect,
		TargetID:      ent.UUID,
		PendingFields: e.schema.EditableKeys(ent),
		Collected:     directory.Attributes{},
		StartedAt:     e.now(),
	}
	return Step{Session: s, State: StateEditSelect, Fields: s.PendingFields, Entity: ent}
}

// SelectEditField picks the field to change and prompts for its new value.
func (e *Engine) SelectEditField(ctx context.Context, s Session, key string) Step {
	if s.Mode != ModeEditExisting || (s.Current() != StateEditSelect && s.Current() != StateEditValue) {
		return e.stateFailure("no edit in progress")
	}
	if !slices.Contains(s.PendingFields, key) {
		step := e.editStep(ctx, s.Clone())
		step.Failure = &Failure{Kind: FailValidation, Field: key, Reason: "field cannot be edited on this account"}
		return step
	}
	next := s.Clone()
	next.State = StateEditValue
	next.EditField = key
	return e.editStep(ctx, next)
}

// SubmitEdit validates a new value for the selected field and sends it to
// the directory immediately as a partial update.
func (e *Engine) SubmitEdit(ctx context.Context, s Session, raw string) Step {
	if s.Mode != ModeEditExisting || s.Current() != StateEditValue {
		return e.stateFailure("no field selected for editing")
	}
	f, ok := e.schema.Field(s.EditField)
	if !ok {
		return e.stateFailure("unknown field " + s.EditField)
	}
	if trimmed := strings.TrimSpace(raw); f.Key == schema.FieldExpireAt && strings.HasPrefix(trimmed, "+") {
		days, err := strconv.Atoi(strings.TrimPrefix(trimmed, "+"))
		if err != nil {
			step := e.editStep(ctx, s.Clone())
			step.Failure = &Failure{Kind: FailValidation, Field: f.Key, Reason: "extension must be +<days>"}
			return step
		}
		return e.ExtendExpiration(ctx, s, days)
	}

	v, err := f.Validate(raw)
	if err == nil && v == nil {
		err = &schema.ValidationError{Field: f.Key, Reason: "a value is required"}
	}
	if err != nil {
		step := e.editStep(ctx, s.Clone())
		step.Failure = validationFailure(f.Key, err)
		return step
	}

	attrs := directory.Attributes{f.Key: v}
	if f.Key == schema.FieldTrafficStrategy && v != schema.StrategyNoReset {
		if cur, err := e.accounts.Load(ctx, s.TargetID); err == nil && cur.HwidDeviceLimit != nil && *cur.HwidDeviceLimit > 0 {
			step := e.editStep(ctx, s.Clone())
			step.Failure = &Failure{
				Kind:   FailValidation,
				Field:  f.Key,
				Reason: "must stay " + schema.StrategyNoReset + " while a device limit is set",
			}
			return step
		}
	}
	schema.ApplyDeviceLimitRule(attrs)

	updated, err := e.client.UpdateFields(ctx, s.TargetID, attrs)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			e.accounts.InvalidateOne(s.TargetID)
			return Step{Session: Session{}, State: StateIdle, Failure: remoteFailure(err)}
		}
		e.log.Warn("account update failed", "id", s.TargetID, "field", f.Key, "error", err)
		step := e.editStep(ctx, s.Clone())
		step.Failure = remoteFailure(err)
		return step
	}

	e.accounts.InvalidateOne(s.TargetID)
	e.accounts.InvalidateList()
	e.log.Info("account updated", "id", s.TargetID, "field", f.Key)

	next := s.Clone()
	next.State = StateEditSelect
	next.EditField = ""
	next.PendingFields = e.schema.EditableKeys(updated)
	return Step{Session: next, State: StateEditSelect, Fields: next.PendingFields, Entity: updated, Updated: true}
}

// ExtendExpiration pushes the account's expiration forward by days from
// its current value, or from now when it has none.
func (e *Engine) ExtendExpiration(ctx context.Context, s Session, days int) Step {
	if s.Mode != ModeEditExisting || !s.Active() {
		return e.stateFailure("no edit in progress")
	}
	if days <= 0 {
		step := e.editStep(ctx, s.Clone())
		step.Failure = &Failure{Kind: FailValidation, Field: schema.FieldExpireAt, Reason: "days must be positive"}
		return step
	}
	cur, err := e.accounts.Load(ctx, s.TargetID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Step{Session: Session{}, State: StateIdle, Failure: remoteFailure(err)}
		}
		step := Step{Session: s.Clone(), State: s.Current(), Failure: remoteFailure(err)}
		return step
	}
	base := e.now()
	if cur.ExpireAt != nil {
		base = *cur.ExpireAt
	}
	target := schema.StartOfDay(base.AddDate(0, 0, days))

	next := s.Clone()
	next.State = StateEditValue
	next.EditField = schema.FieldExpireAt
	return e.SubmitEdit(ctx, next, target.Format(schema.DateLayout))
}

// editStep renders the edit session, reloading the account for display.
func (e *Engine) editStep(ctx context.Context, s Session) Step {
	step := Step{Session: s, State: s.Current(), Fields: s.PendingFields}
	ent, err := e.accounts.Load(ctx, s.TargetID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Step{Session: Session{}, State: StateIdle, Failure: remoteFailure(err)}
		}
		step.Failure = remoteFailure(err)
		return step
	}
	step.Entity = ent
	if s.Current() == StateEditValue {
		f, _ := e.schema.Field(s.EditField)
		cur, _ := ent.Field(f.Key)
		step.Prompt = &Prompt{
			Field:    f.Key,
			Label:    f.Label,
			Kind:     f.Kind,
			Required: f.Required,
			Current:  cur,
			Presets:  e.editPresets(f),
			Position: 1,
			Total:    1,
		}
	}
	return step
}

// Expiration edits offer day extensions rather than absolute dates.
func (e *Engine) editPresets(f schema.FieldSpec) []schema.Preset {
	if f.Key != schema.FieldExpireAt {
		return f.PresetsAt(e.now())
	}
	out := make([]schema.Preset, 0, len(EditExtendDays))
	for _, d := range EditExtendDays {
		out = append(out, schema.Preset{Label: "+" + strconv.Itoa(d) + " days", Value: "+" + strconv.Itoa(d)})
	}
	return out
}

// EditExtendDays are the extension presets offered when editing expiration.
var EditExtendDays = []int{30, 60, 90, 180, 360}
