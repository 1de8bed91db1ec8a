package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func field(t *testing.T, key string) FieldSpec {
	t.Helper()
	f, ok := Accounts().Field(key)
	require.True(t, ok, key)
	return f
}

func TestValidate_Username(t *testing.T) {
	f := field(t, FieldUsername)
	tests := []struct {
		in    string
		valid bool
	}{
		{"alice_01", true},
		{"ab-cd-ef", true},
		{"short", false},
		{"has space!", false},
		{"", false},
		{"abcdefghijklmnopqrstuvwxyz01234567", true},
		{"abcdefghijklmnopqrstuvwxyz012345678", false},
	}
	for _, tt := range tests {
		v, err := f.Validate(tt.in)
		if tt.valid {
			assert.NoError(t, err, tt.in)
			assert.Equal(t, tt.in, v)
		} else {
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve, tt.in)
		}
	}
}

func TestValidate_OptionalEmptyLeavesUnset(t *testing.T) {
	for _, key := range []string{FieldEmail, FieldTag, FieldTelegramID} {
		v, err := field(t, key).Validate("   ")
		assert.NoError(t, err, key)
		assert.Nil(t, v, key)
	}
}

func TestValidate_Integers(t *testing.T) {
	dev := field(t, FieldDeviceLimit)
	v, err := dev.Validate("3")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = dev.Validate("-1")
	assert.ErrorContains(t, err, "negative")
	_, err = dev.Validate("two")
	assert.ErrorContains(t, err, "whole number")

	tg := field(t, FieldTelegramID)
	_, err = tg.Validate("0")
	assert.Error(t, err)
	v, err = tg.Validate("123456789")
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), v)
}

func TestValidate_ByteSizeZeroIsUnlimited(t *testing.T) {
	f := field(t, FieldTrafficLimit)

	v, err := f.Validate("0")
	require.NoError(t, err)
	b, ok := v.(ByteSize)
	require.True(t, ok)
	assert.True(t, b.IsUnlimited())

	v, err = f.Validate("100")
	require.NoError(t, err)
	assert.Equal(t, 100*GiB, v)

	_, err = f.Validate("-5")
	assert.Error(t, err)
	_, err = f.Validate("99999999999999")
	assert.Error(t, err)
}

func TestValidate_DateRoundTrip(t *testing.T) {
	f := field(t, FieldExpireAt)
	v, err := f.Validate("2025-03-01")
	require.NoError(t, err)
	ts, ok := v.(time.Time)
	require.True(t, ok)
	canonical := FormatDate(ts)
	assert.Equal(t, "2025-03-01T00:00:00.000Z", canonical)
	assert.Equal(t, "2025-03-01", canonical[:10])

	_, err = f.Validate("01.03.2025")
	assert.Error(t, err)
	_, err = f.Validate("2025-02-30")
	assert.Error(t, err)
}

func TestValidate_Enum(t *testing.T) {
	f := field(t, FieldTrafficStrategy)
	v, err := f.Validate("month")
	require.NoError(t, err)
	assert.Equal(t, StrategyMonth, v)
	_, err = f.Validate("YEAR")
	assert.Error(t, err)
	assert.Len(t, f.PresetsAt(time.Now()), 4)
}

func TestValidate_TagAndEmail(t *testing.T) {
	_, err := field(t, FieldTag).Validate("vip")
	assert.Error(t, err)
	_, err = field(t, FieldTag).Validate("VIP_1")
	assert.NoError(t, err)
	_, err = field(t, FieldEmail).Validate("a@b")
	assert.Error(t, err)
	_, err = field(t, FieldEmail).Validate("a.b+c@example.org")
	assert.NoError(t, err)
}

func TestPresetsAreAcceptedByValidator(t *testing.T) {
	now := time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC)
	for _, f := range Accounts().Fields() {
		for _, p := range f.PresetsAt(now) {
			_, err := f.Validate(p.Value)
			assert.NoError(t, err, "%s preset %q", f.Key, p.Label)
		}
	}
}

func TestDecode(t *testing.T) {
	raw, err := json.Marshal(100 * GiB)
	require.NoError(t, err)
	v, err := field(t, FieldTrafficLimit).Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 100*GiB, v)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	raw, err = json.Marshal(day)
	require.NoError(t, err)
	v, err = field(t, FieldExpireAt).Decode(raw)
	require.NoError(t, err)
	assert.True(t, day.Equal(v.(time.Time)))

	v, err = field(t, FieldDeviceLimit).Decode(json.RawMessage("2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}
