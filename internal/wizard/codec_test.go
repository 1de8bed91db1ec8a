package wizard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/accountdesk/internal/schema"
)

func TestCodec_PreservesTypedValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	codec := NewCodec(schema.Accounts())

	step := f.eng.ChooseTemplate(f.eng.StartTemplate().Session, "Standard", true)
	step = f.eng.Submit(ctx, step.Session, "coded_01")

	raw, err := codec.Encode(step.Session)
	require.NoError(t, err)
	got, err := codec.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, step.Session.Mode, got.Mode)
	assert.Equal(t, step.Session.Cursor, got.Cursor)
	assert.Equal(t, step.Session.PendingFields, got.PendingFields)
	assert.Equal(t, "Standard", got.SourceTemplate)
	assert.Equal(t, "coded_01", got.Collected[schema.FieldUsername])
	assert.Equal(t, 100*schema.GiB, got.Collected[schema.FieldTrafficLimit])
	assert.Equal(t, int64(3), got.Collected[schema.FieldDeviceLimit])
	exp, ok := got.Collected[schema.FieldExpireAt].(time.Time)
	require.True(t, ok)
	assert.True(t, exp.Equal(step.Session.Collected[schema.FieldExpireAt].(time.Time)))

	// the decoded session continues the flow
	next := f.eng.Skip(ctx, got)
	assert.Equal(t, schema.FieldTrafficStrategy, next.Prompt.Field)
}

func TestCodec_RejectsUnknownField(t *testing.T) {
	codec := NewCodec(schema.Accounts())
	_, err := codec.Decode([]byte(`{"mode":"manual_create","collected":{"color":"\"red\""}}`))
	assert.Error(t, err)
}
