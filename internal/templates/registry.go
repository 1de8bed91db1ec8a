// Package templates provides named attribute presets for account creation,
// declared in CUE and validated against the #Template definition.
package templates

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/schema"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed default.cue
var defaultSource []byte

// Template is one named preset. Unset fields leave the attribute alone.
type Template struct {
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	TrafficLimitGiB      *int64 `json:"trafficLimitGiB,omitempty"`
	TrafficLimitStrategy string `json:"trafficLimitStrategy,omitempty"`
	ExpireDays           *int   `json:"expireDays,omitempty"`
	HwidDeviceLimit      *int64 `json:"hwidDeviceLimit,omitempty"`
	AccountDescription   string `json:"accountDescription,omitempty"`
	Tag                  string `json:"tag,omitempty"`
}

// Attributes renders the template as typed account attributes at time now.
func (t Template) Attributes(now time.Time) directory.Attributes {
	attrs := directory.Attributes{}
	if t.TrafficLimitGiB != nil {
		attrs[schema.FieldTrafficLimit] = schema.ByteSize(*t.TrafficLimitGiB) * schema.GiB
	}
	if t.TrafficLimitStrategy != "" {
		attrs[schema.FieldTrafficStrategy] = t.TrafficLimitStrategy
	}
	if t.ExpireDays != nil {
		attrs[schema.FieldExpireAt] = schema.StartOfDay(now.AddDate(0, 0, *t.ExpireDays))
	}
	if t.HwidDeviceLimit != nil {
		attrs[schema.FieldDeviceLimit] = *t.HwidDeviceLimit
	}
	if t.AccountDescription != "" {
		attrs[schema.FieldDescription] = t.AccountDescription
	}
	if t.Tag != "" {
		attrs[schema.FieldTag] = t.Tag
	}
	return attrs
}

// Registry is an ordered, immutable set of templates.
type Registry struct {
	order  []string
	byName map[string]Template
}

// Default loads the embedded template set.
func Default() (*Registry, error) {
	return Parse(defaultSource)
}

// LoadFile loads templates from a CUE file on disk.
func LoadFile(path string) (*Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading templates: %w", err)
	}
	return Parse(src)
}

// Parse compiles src against the template schema.
func Parse(src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	full := append(append(append([]byte{}, schemaSource...), '\n'), src...)
	val := ctx.CompileBytes(full, cue.Filename("templates.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("compiling templates: %w", err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating templates: %w", err)
	}

	iter, err := val.LookupPath(cue.ParsePath("templates")).List()
	if err != nil {
		return nil, fmt.Errorf("reading templates list: %w", err)
	}
	r := &Registry{byName: make(map[string]Template)}
	for iter.Next() {
		var t Template
		if err := iter.Value().Decode(&t); err != nil {
			return nil, fmt.Errorf("decoding template: %w", err)
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate template %q", t.Name)
		}
		r.order = append(r.order, t.Name)
		r.byName[t.Name] = t
	}
	return r, nil
}

// ListNames returns template names in declaration order.
func (r *Registry) ListNames() []string {
	return append([]string(nil), r.order...)
}

// Get returns the named template.
func (r *Registry) Get(name string) (Template, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// All returns every template in declaration order.
func (r *Registry) All() []Template {
	out := make([]Template, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Apply merges the named template over base, then enforces the device
// limit rule. base is not modified.
func (r *Registry) Apply(base directory.Attributes, name string, now time.Time) (directory.Attributes, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	out := base.Clone()
	for k, v := range t.Attributes(now) {
		out[k] = v
	}
	schema.ApplyDeviceLimitRule(out)
	return out, nil
}
