package templates

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/schema"
)

var now = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

func TestDefault_LoadsInOrder(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	assert.Equal(t, []string{"Trial", "Standard", "Metered", "Family", "Unlimited"}, r.ListNames())

	tpl, ok := r.Get("Trial")
	require.True(t, ok)
	require.NotNil(t, tpl.ExpireDays)
	assert.Equal(t, 7, *tpl.ExpireDays)

	_, ok = r.Get("Missing")
	assert.False(t, ok)
}

func TestApply_MergesTypedAttributes(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	base := directory.Attributes{schema.FieldUsername: "alice_01", schema.FieldTag: "OLD"}
	out, err := r.Apply(base, "Trial", now)
	require.NoError(t, err)

	assert.Equal(t, "alice_01", out[schema.FieldUsername])
	assert.Equal(t, 10*schema.GiB, out[schema.FieldTrafficLimit])
	assert.Equal(t, int64(1), out[schema.FieldDeviceLimit])
	assert.Equal(t, "TRIAL", out[schema.FieldTag])
	assert.Equal(t, time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC), out[schema.FieldExpireAt])
	assert.Equal(t, "OLD", base[schema.FieldTag])
}

func TestApply_DeviceLimitOverridesTemplateStrategy(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	out, err := r.Apply(directory.Attributes{}, "Standard", now)
	require.NoError(t, err)
	assert.Equal(t, schema.StrategyNoReset, out[schema.FieldTrafficStrategy])

	out, err = r.Apply(directory.Attributes{}, "Metered", now)
	require.NoError(t, err)
	assert.Equal(t, schema.StrategyWeek, out[schema.FieldTrafficStrategy])

	out, err = r.Apply(directory.Attributes{}, "Unlimited", now)
	require.NoError(t, err)
	assert.True(t, out[schema.FieldTrafficLimit].(schema.ByteSize).IsUnlimited())
}

func TestApply_UnknownTemplate(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	_, err = r.Apply(nil, "Nope", now)
	assert.Error(t, err)
}

func TestDefaultTemplatesPassSchema(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	s := schema.Accounts()
	for _, name := range r.ListNames() {
		out, err := r.Apply(directory.Attributes{}, name, now)
		require.NoError(t, err)
		for k, v := range out {
			f, ok := s.Field(k)
			require.True(t, ok, k)
			assert.NoError(t, f.Check(v), "%s.%s", name, k)
		}
	}
}

func TestParse_RejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad strategy":   `templates: [{name: "X", trafficLimitStrategy: "YEARLY"}]`,
		"negative quota": `templates: [{name: "X", trafficLimitGiB: -1}]`,
		"lowercase tag":  `templates: [{name: "X", tag: "vip"}]`,
		"unknown field":  `templates: [{name: "X", color: "red"}]`,
		"duplicate":      `templates: [{name: "X"}, {name: "X"}]`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.cue")
	require.NoError(t, os.WriteFile(path, []byte(`templates: [{name: "Solo", hwidDeviceLimit: 1}]`), 0o600))
	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Solo"}, r.ListNames())
}
