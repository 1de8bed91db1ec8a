package schema

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"time"

	"github.com/matthewbaird/accountdesk/internal/directory"
)

// Attribute keys.
const (
	FieldUsername        = "username"
	FieldTrafficLimit    = "trafficLimitBytes"
	FieldTrafficStrategy = "trafficLimitStrategy"
	FieldExpireAt        = "expireAt"
	FieldDeviceLimit     = "hwidDeviceLimit"
	FieldDescription     = "description"
	FieldTelegramID      = "telegramId"
	FieldEmail           = "email"
	FieldTag             = "tag"
	FieldResetDay        = "resetDay"
)

// Traffic reset strategies.
const (
	StrategyNoReset = "NO_RESET"
	StrategyDay     = "DAY"
	StrategyWeek    = "WEEK"
	StrategyMonth   = "MONTH"
)

// Completion defaults.
const (
	DefaultTrafficLimit = 100 * GiB
	DefaultDeviceLimit  = int64(1)
	DefaultResetDay     = int64(1)
	DefaultExpireDays   = 30
	GeneratedNameLength = 20
)

// OptionalFields are appended by "add optional fields" in the short
// template path.
var OptionalFields = []string{FieldTelegramID, FieldEmail, FieldTag, FieldExpireAt}

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{6,34}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	tagPattern      = regexp.MustCompile(`^[A-Z0-9_]{1,16}$`)
)

// Schema is an ordered set of FieldSpecs with unique keys.
type Schema struct {
	fields []FieldSpec
	index  map[string]int
}

// New builds a schema, rejecting duplicate keys.
func New(fields ...FieldSpec) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if f.Key == "" {
			return nil, fmt.Errorf("schema: field with empty key")
		}
		if _, dup := s.index[f.Key]; dup {
			return nil, fmt.Errorf("schema: duplicate field %q", f.Key)
		}
		s.index[f.Key] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// Field looks up a spec by key.
func (s *Schema) Field(key string) (FieldSpec, bool) {
	i, ok := s.index[key]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// Fields returns every spec in schema order, internal ones included.
func (s *Schema) Fields() []FieldSpec {
	return append([]FieldSpec(nil), s.fields...)
}

// PromptKeys returns the keys collected by a full manual run.
func (s *Schema) PromptKeys() []string {
	var out []string
	for _, f := range s.fields {
		if !f.Internal {
			out = append(out, f.Key)
		}
	}
	return out
}

// EditableKeys returns the prompted keys present on e, in schema order.
func (s *Schema) EditableKeys(e *directory.Entity) []string {
	var out []string
	for _, f := range s.fields {
		if f.Internal {
			continue
		}
		if _, ok := e.Field(f.Key); ok {
			out = append(out, f.Key)
		}
	}
	return out
}

// ApplyDefaults fills every unset required field with its default and
// re-applies the device limit rule. attrs is modified in place.
func (s *Schema) ApplyDefaults(attrs directory.Attributes, now time.Time) {
	for _, f := range s.fields {
		if !f.Required || f.Default == nil {
			continue
		}
		if v, ok := attrs[f.Key]; ok && !isEmpty(v) {
			continue
		}
		attrs[f.Key] = f.Default(now)
	}
	ApplyDeviceLimitRule(attrs)
}

// FirstProblem returns the first required attribute, in schema order, that
// is missing or fails its validator, then the first invalid optional one.
func (s *Schema) FirstProblem(attrs directory.Attributes) *ValidationError {
	for _, f := range s.fields {
		v, ok := attrs[f.Key]
		if !ok || isEmpty(v) {
			if f.Required {
				return &ValidationError{Field: f.Key, Reason: "is missing"}
			}
			continue
		}
		if err := f.Check(v); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				return ve
			}
			return &ValidationError{Field: f.Key, Reason: err.Error()}
		}
	}
	return nil
}

// ApplyDeviceLimitRule forces the reset strategy to NO_RESET whenever the
// device limit is above zero. It reports whether it changed attrs.
func ApplyDeviceLimitRule(attrs directory.Attributes) bool {
	n, ok := attrs[FieldDeviceLimit].(int64)
	if !ok || n <= 0 {
		return false
	}
	if attrs[FieldTrafficStrategy] == StrategyNoReset {
		return false
	}
	attrs[FieldTrafficStrategy] = StrategyNoReset
	return true
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case time.Time:
		return t.IsZero()
	}
	return false
}

// Accounts returns the account creation and editing schema.
func Accounts() *Schema {
	zero, one, maxDay := int64(0), int64(1), int64(31)
	s, err := New(
		FieldSpec{
			Key: FieldUsername, Label: "Username", Kind: KindText, Required: true,
			Pattern:     usernamePattern,
			PatternHint: "must be 6-34 characters of letters, digits, _ or -",
			Default:     func(time.Time) any { return RandomToken(GeneratedNameLength) },
		},
		FieldSpec{
			Key: FieldTrafficLimit, Label: "Traffic limit (GiB, 0 = unlimited)", Kind: KindByteSize, Required: true,
			Default: func(time.Time) any { return DefaultTrafficLimit },
			Presets: func(time.Time) []Preset { return trafficPresets },
		},
		FieldSpec{
			Key: FieldTrafficStrategy, Label: "Traffic reset strategy", Kind: KindEnum, Required: true,
			Values:  []string{StrategyNoReset, StrategyDay, StrategyWeek, StrategyMonth},
			Default: func(time.Time) any { return StrategyNoReset },
		},
		FieldSpec{
			Key: FieldExpireAt, Label: "Expiration date (YYYY-MM-DD)", Kind: KindDate, Required: true,
			Default: func(now time.Time) any { return StartOfDay(now.AddDate(0, 0, DefaultExpireDays)) },
			Presets: expirePresets,
		},
		FieldSpec{
			Key: FieldDeviceLimit, Label: "Device limit (0 = unlimited)", Kind: KindInteger, Required: true,
			Min:     &zero,
			Default: func(time.Time) any { return DefaultDeviceLimit },
			Presets: func(time.Time) []Preset { return devicePresets },
		},
		FieldSpec{
			Key: FieldDescription, Label: "Description", Kind: KindText, Required: true,
			MaxLen: 1000,
			Default: func(now time.Time) any {
				return "Auto-created account " + now.Format("02.01.2006 15:04")
			},
			Presets: func(time.Time) []Preset { return descriptionPresets },
		},
		FieldSpec{
			Key: FieldTelegramID, Label: "Telegram ID", Kind: KindInteger,
			Min: &one,
		},
		FieldSpec{
			Key: FieldEmail, Label: "Email", Kind: KindText,
			Pattern: emailPattern, PatternHint: "must be a valid email address",
		},
		FieldSpec{
			Key: FieldTag, Label: "Tag", Kind: KindText,
			Pattern: tagPattern, PatternHint: "must be 1-16 characters of A-Z, 0-9 or _",
		},
		FieldSpec{
			Key: FieldResetDay, Label: "Reset day", Kind: KindInteger, Required: true, Internal: true,
			Min: &one, Max: &maxDay,
			Default: func(time.Time) any { return DefaultResetDay },
		},
	)
	if err != nil {
		panic(err)
	}
	return s
}

var trafficPresets = func() []Preset {
	var out []Preset
	for _, gb := range []int{50, 100, 200, 300, 400, 500, 600, 700, 800} {
		out = append(out, Preset{Label: strconv.Itoa(gb) + " GiB", Value: strconv.Itoa(gb)})
	}
	for _, tb := range []int{1, 2, 5} {
		out = append(out, Preset{Label: strconv.Itoa(tb) + " TiB", Value: strconv.Itoa(tb * 1024)})
	}
	return append(out, Preset{Label: "Unlimited", Value: "0"})
}()

var devicePresets = []Preset{
	{Label: "1", Value: "1"}, {Label: "2", Value: "2"}, {Label: "3", Value: "3"},
	{Label: "4", Value: "4"}, {Label: "5", Value: "5"}, {Label: "10", Value: "10"},
	{Label: "Unlimited", Value: "0"},
}

var descriptionPresets = []Preset{
	{Label: "Trial", Value: "Trial account"},
	{Label: "Personal", Value: "Personal account"},
	{Label: "Family", Value: "Family plan"},
	{Label: "Business", Value: "Business account"},
}

// ExpirePresetDays are the day offsets offered for expiration dates.
var ExpirePresetDays = []int{1, 3, 7, 30, 60, 90, 180, 365, 365 * 80}

func expirePresets(now time.Time) []Preset {
	out := make([]Preset, 0, len(ExpirePresetDays))
	for _, d := range ExpirePresetDays {
		label := strconv.Itoa(d) + " days"
		if d == 365*80 {
			label = "80 years"
		}
		out = append(out, Preset{Label: label, Value: StartOfDay(now.AddDate(0, 0, d)).Format(DateLayout)})
	}
	return out
}

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomToken returns n random alphanumeric characters.
func RandomToken(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("schema: reading random bytes: %v", err))
		}
		out[i] = tokenAlphabet[idx.Int64()]
	}
	return string(out)
}
