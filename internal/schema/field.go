// Package schema declares the ordered, typed attribute schema that account
// creation and editing collect, and the validators for each attribute kind.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/accountdesk/internal/directory"
)

// Kind classifies how raw input is parsed and what Go type the value has.
type Kind int

const (
	KindText     Kind = iota // string
	KindInteger              // int64
	KindEnum                 // string, one of FieldSpec.Values
	KindDate                 // time.Time at 00:00 UTC
	KindByteSize             // ByteSize
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindEnum:
		return "enum"
	case KindDate:
		return "date"
	case KindByteSize:
		return "byte_size"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ByteSize is a quota in bytes. Zero means unlimited.
type ByteSize int64

const (
	Unlimited ByteSize = 0
	GiB       ByteSize = 1 << 30
)

// IsUnlimited reports whether the quota is the unlimited sentinel.
func (b ByteSize) IsUnlimited() bool { return b == Unlimited }

// DateLayout is the calendar-date input form.
const DateLayout = "2006-01-02"

// FormatDate renders a date value in the canonical timestamp form.
func FormatDate(t time.Time) string {
	return t.UTC().Format(directory.TimestampLayout)
}

// StartOfDay truncates t to 00:00 UTC of its calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Preset is a one-tap choice whose Value is accepted by the field validator.
type Preset struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ValidationError rejects a value for one field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// FieldSpec declares one collectible attribute.
type FieldSpec struct {
	Key      string
	Label    string
	Kind     Kind
	Required bool
	// Internal fields are defaulted on completion but never prompted.
	Internal bool

	Pattern     *regexp.Regexp // text
	PatternHint string
	MaxLen      int      // text, 0 = unbounded
	Min, Max    *int64   // integer
	Values      []string // enum

	Default func(now time.Time) any
	Presets func(now time.Time) []Preset
}

// Validate parses raw input. An empty input on an optional field returns
// (nil, nil): the field is left unset.
func (f FieldSpec) Validate(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if f.Required {
			return nil, f.invalid("a value is required")
		}
		return nil, nil
	}

	switch f.Kind {
	case KindText:
		if f.MaxLen > 0 && len([]rune(raw)) > f.MaxLen {
			return nil, f.invalid(fmt.Sprintf("must be at most %d characters", f.MaxLen))
		}
		if f.Pattern != nil && !f.Pattern.MatchString(raw) {
			return nil, f.invalid(f.PatternHint)
		}
		return raw, nil

	case KindInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, f.invalid("must be a whole number")
		}
		if err := f.checkRange(n); err != nil {
			return nil, err
		}
		return n, nil

	case KindByteSize:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, f.invalid("must be a whole number of GiB")
		}
		if n < 0 {
			return nil, f.invalid("must not be negative")
		}
		if n > int64(^uint64(0)>>1)/int64(GiB) {
			return nil, f.invalid("is too large")
		}
		return ByteSize(n) * GiB, nil

	case KindDate:
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			return nil, f.invalid("must be a date in YYYY-MM-DD form")
		}
		return StartOfDay(t), nil

	case KindEnum:
		v := strings.ToUpper(raw)
		if !slices.Contains(f.Values, v) {
			return nil, f.invalid("must be one of " + strings.Join(f.Values, ", "))
		}
		return v, nil
	}
	return nil, f.invalid("unsupported field kind")
}

// Check validates an already-typed value, e.g. one supplied by a template.
func (f FieldSpec) Check(v any) error {
	switch f.Kind {
	case KindText:
		s, ok := v.(string)
		if !ok {
			return f.invalid("must be text")
		}
		_, err := f.Validate(s)
		return err
	case KindInteger:
		n, ok := v.(int64)
		if !ok {
			return f.invalid("must be a whole number")
		}
		return f.checkRange(n)
	case KindByteSize:
		b, ok := v.(ByteSize)
		if !ok {
			return f.invalid("must be a byte size")
		}
		if b < 0 {
			return f.invalid("must not be negative")
		}
		return nil
	case KindDate:
		t, ok := v.(time.Time)
		if !ok || t.IsZero() {
			return f.invalid("must be a date")
		}
		return nil
	case KindEnum:
		s, ok := v.(string)
		if !ok || !slices.Contains(f.Values, s) {
			return f.invalid("must be one of " + strings.Join(f.Values, ", "))
		}
		return nil
	}
	return f.invalid("unsupported field kind")
}

// Decode restores a typed value from its JSON encoding.
func (f FieldSpec) Decode(raw json.RawMessage) (any, error) {
	switch f.Kind {
	case KindText, KindEnum:
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case KindInteger:
		var n int64
		err := json.Unmarshal(raw, &n)
		return n, err
	case KindByteSize:
		var n int64
		err := json.Unmarshal(raw, &n)
		return ByteSize(n), err
	case KindDate:
		var t time.Time
		err := json.Unmarshal(raw, &t)
		return t.UTC(), err
	}
	return nil, fmt.Errorf("schema: cannot decode %s value for %s", f.Kind, f.Key)
}

// PresetsAt returns the presets offered at time now.
func (f FieldSpec) PresetsAt(now time.Time) []Preset {
	if f.Presets != nil {
		return f.Presets(now)
	}
	if f.Kind == KindEnum {
		out := make([]Preset, len(f.Values))
		for i, v := range f.Values {
			out[i] = Preset{Label: v, Value: v}
		}
		return out
	}
	return nil
}

func (f FieldSpec) checkRange(n int64) error {
	if f.Min != nil && n < *f.Min {
		if *f.Min == 0 {
			return f.invalid("must not be negative")
		}
		return f.invalid(fmt.Sprintf("must be at least %d", *f.Min))
	}
	if f.Max != nil && n > *f.Max {
		return f.invalid(fmt.Sprintf("must be at most %d", *f.Max))
	}
	return nil
}

func (f FieldSpec) invalid(reason string) *ValidationError {
	return &ValidationError{Field: f.Key, Reason: reason}
}
