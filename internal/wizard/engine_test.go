package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/accountdesk/internal/cache"
	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/schema"
	"github.com/matthewbaird/accountdesk/internal/templates"
)

var testNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type fixture struct {
	eng   *Engine
	dir   *directory.MemoryClient
	cache *cache.Cache
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	dir := directory.NewMemoryClient()
	tpls, err := templates.Default()
	require.NoError(t, err)
	c := cache.New(dir, cache.WithClock(clock))
	opts = append([]Option{WithClock(clock)}, opts...)
	return fixture{
		eng:   NewEngine(schema.Accounts(), tpls, dir, c, opts...),
		dir:   dir,
		cache: c,
	}
}

func (f fixture) account(t *testing.T, id string) *directory.Entity {
	t.Helper()
	e, err := f.dir.FetchOne(context.Background(), id)
	require.NoError(t, err)
	return e
}

func TestManualCreate_FullRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	step := f.eng.StartManual()
	require.Equal(t, StateCollecting, step.State)
	require.NotNil(t, step.Prompt)
	assert.Equal(t, schema.FieldUsername, step.Prompt.Field)
	assert.Equal(t, 1, step.Prompt.Position)
	assert.Equal(t, 9, step.Prompt.Total)

	inputs := []string{"alice_01", "50", "month", "2025-03-01", "2", "Test account", "12345", "a@b.co", "VIP"}
	for i, in := range inputs {
		require.Nil(t, step.Failure, "input %d", i)
		step = f.eng.Submit(ctx, step.Session, in)
	}

	require.Nil(t, step.Failure)
	assert.Equal(t, StateComplete, step.State)
	assert.True(t, step.Created)
	assert.False(t, step.Session.Active())
	require.NotNil(t, step.Entity)

	got := f.account(t, step.Entity.UUID)
	assert.Equal(t, "alice_01", got.Username)
	assert.Equal(t, int64(50*schema.GiB), got.TrafficLimitBytes)
	assert.Equal(t, schema.StrategyNoReset, got.TrafficLimitStrategy, "device limit 2 forces NO_RESET")
	require.NotNil(t, got.ExpireAt)
	assert.Equal(t, "2025-03-01", got.ExpireAt.UTC().Format(schema.DateLayout))
	assert.Equal(t, "VIP", got.Tag)
	require.NotNil(t, got.TelegramID)
	assert.Equal(t, int64(12345), *got.TelegramID)
}

func TestSubmit_InvalidRepromptsUnchanged(t *testing.T) {
	f := newFixture(t)
	step := f.eng.StartManual()
	before := step.Session

	step = f.eng.Submit(context.Background(), before, "no")
	require.NotNil(t, step.Failure)
	assert.Equal(t, FailValidation, step.Failure.Kind)
	assert.Equal(t, schema.FieldUsername, step.Failure.Field)
	assert.Equal(t, StateCollecting, step.State)
	assert.Equal(t, before.Cursor, step.Session.Cursor)
	assert.Empty(t, step.Session.Collected)
	require.NotNil(t, step.Prompt)
	assert.Equal(t, schema.FieldUsername, step.Prompt.Field)
}

func TestSubmit_DoesNotMutateInputSession(t *testing.T) {
	f := newFixture(t)
	start := f.eng.StartManual().Session

	next := f.eng.Submit(context.Background(), start, "alice_01")
	assert.Equal(t, 0, start.Cursor)
	assert.Empty(t, start.Collected)
	assert.Equal(t, 1, next.Session.Cursor)
}

func TestSkipEverything_FillsRequiredDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	step := f.eng.StartManual()
	for step.State == StateCollecting {
		step = f.eng.Skip(ctx, step.Session)
	}
	require.Nil(t, step.Failure)
	require.True(t, step.Created)

	got := f.account(t, step.Entity.UUID)
	assert.Len(t, got.Username, schema.GeneratedNameLength)
	assert.Equal(t, int64(schema.DefaultTrafficLimit), got.TrafficLimitBytes)
	assert.Equal(t, schema.StrategyNoReset, got.TrafficLimitStrategy)
	require.NotNil(t, got.HwidDeviceLimit)
	assert.Equal(t, int64(1), *got.HwidDeviceLimit)
	assert.Equal(t, "Auto-created account 10.01.2025 12:00", got.Description)
	require.NotNil(t, got.ExpireAt)
	assert.True(t, got.ExpireAt.Equal(time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC)))
}

func TestDeviceLimitRule_AllPaths(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// device limit zero keeps the chosen strategy
	step := f.eng.StartManual()
	for _, in := range []string{"zero_dev", "10", "week", "", "0"} {
		step = f.eng.Submit(ctx, step.Session, in)
		if step.Failure != nil {
			step = f.eng.Skip(ctx, step.Session)
		}
	}
	step = f.eng.Finish(ctx, step.Session)
	require.True(t, step.Created, "%+v", step.Failure)
	assert.Equal(t, schema.StrategyWeek, f.account(t, step.Entity.UUID).TrafficLimitStrategy)

	// template with strategy WEEK and no device limit, user adds a limit
	step = f.eng.StartTemplate()
	step = f.eng.ChooseTemplate(step.Session, "Metered", true)
	require.Nil(t, step.Failure)
	assert.Equal(t, schema.StrategyWeek, step.Session.Collected[schema.FieldTrafficStrategy])
	for step.State == StateCollecting {
		if step.Prompt.Field == schema.FieldDeviceLimit {
			step = f.eng.Submit(ctx, step.Session, "4")
			assert.Equal(t, schema.StrategyNoReset, step.Session.Collected[schema.FieldTrafficStrategy])
			continue
		}
		step = f.eng.Skip(ctx, step.Session)
	}
	require.True(t, step.Created)
	assert.Equal(t, schema.StrategyNoReset, f.account(t, step.Entity.UUID).TrafficLimitStrategy)
}

func TestTemplateCreate_UsernameOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	step := f.eng.StartTemplate()
	assert.Equal(t, StateTemplateSelect, step.State)
	assert.Contains(t, step.Templates, "Trial")

	step = f.eng.ChooseTemplate(step.Session, "Trial", false)
	require.Nil(t, step.Failure)
	assert.Equal(t, []string{schema.FieldUsername}, step.Session.PendingFields)
	assert.Equal(t, "Trial", step.Session.SourceTemplate)
	assert.Equal(t, 10*schema.GiB, step.Session.Collected[schema.FieldTrafficLimit])

	step = f.eng.Submit(ctx, step.Session, "trial_user")
	require.True(t, step.Created)
	got := f.account(t, step.Entity.UUID)
	assert.Equal(t, "trial_user", got.Username)
	assert.Equal(t, int64(10*schema.GiB), got.TrafficLimitBytes)
	assert.Equal(t, "TRIAL", got.Tag)
	assert.Equal(t, "Trial account", got.Description)
	require.NotNil(t, got.ExpireAt)
	assert.True(t, got.ExpireAt.Equal(time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)))
}

func TestChooseTemplate_Unknown(t *testing.T) {
	f := newFixture(t)
	step := f.eng.ChooseTemplate(f.eng.StartTemplate().Session, "Gold", false)
	require.NotNil(t, step.Failure)
	assert.Equal(t, FailValidation, step.Failure.Kind)
	assert.Equal(t, StateTemplateSelect, step.State)
	assert.NotEmpty(t, step.Templates)
}

func TestTemplateCustomize_UseTemplateValueAndSkip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	step := f.eng.ChooseTemplate(f.eng.StartTemplate().Session, "Family", true)
	require.Equal(t, schema.Accounts().PromptKeys(), step.Session.PendingFields)

	// username has no template value
	step = f.eng.UseTemplateValue(ctx, step.Session)
	require.NotNil(t, step.Failure)
	assert.Equal(t, schema.FieldUsername, step.Failure.Field)
	step = f.eng.Submit(ctx, step.Session, "family_01")

	require.Equal(t, schema.FieldTrafficLimit, step.Prompt.Field)
	assert.True(t, step.Prompt.HasTemplateValue)
	assert.Equal(t, 500*schema.GiB, step.Prompt.Current)
	step = f.eng.UseTemplateValue(ctx, step.Session)
	assert.Equal(t, 500*schema.GiB, step.Session.Collected[schema.FieldTrafficLimit])

	step = f.eng.Skip(ctx, step.Session) // strategy
	step = f.eng.Skip(ctx, step.Session) // expireAt: template value retained
	assert.NotNil(t, step.Session.Collected[schema.FieldExpireAt])

	step = f.eng.Finish(ctx, step.Session)
	require.True(t, step.Created)
	got := f.account(t, step.Entity.UUID)
	require.NotNil(t, got.HwidDeviceLimit)
	assert.Equal(t, int64(5), *got.HwidDeviceLimit)
	assert.Equal(t, "Family plan", got.Description)
}

func TestAddOptionalFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	step := f.eng.ChooseTemplate(f.eng.StartTemplate().Session, "Trial", false)
	step = f.eng.AddOptionalFields(ctx, step.Session)
	require.Nil(t, step.Failure)
	assert.Equal(t, []string{
		schema.FieldUsername, schema.FieldTelegramID, schema.FieldEmail, schema.FieldTag, schema.FieldExpireAt,
	}, step.Session.PendingFields)
	assert.Equal(t, 1, step.Session.Cursor)
	assert.Equal(t, schema.FieldTelegramID, step.Prompt.Field)

	// a second add does not duplicate keys
	again := f.eng.AddOptionalFields(ctx, step.Session)
	assert.Len(t, again.Session.PendingFields, 5)

	step = f.eng.Submit(ctx, step.Session, "555")
	step = f.eng.Submit(ctx, step.Session, "")
	assert.Equal(t, schema.FieldTag, step.Prompt.Field)
	step = f.eng.Skip(ctx, step.Session)
	step = f.eng.UseTemplateValue(ctx, step.Session)
	require.True(t, step.Created)
	got := f.account(t, step.Entity.UUID)
	require.NotNil(t, got.TelegramID)
	assert.Equal(t, int64(555), *got.TelegramID)
	assert.Equal(t, "TRIAL", got.Tag)
}

func TestCancel_FromAnyState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	f := newFixture(t, WithMetrics(m))
	ctx := context.Background()

	f.dir.Seed(directory.Entity{UUID: "u-1", Username: "bob_0001"})
	sessions := []Session{
		f.eng.StartManual().Session,
		f.eng.StartTemplate().Session,
		f.eng.ChooseTemplate(f.eng.StartTemplate().Session, "Trial", true).Session,
		f.eng.StartEdit(ctx, "u-1").Session,
	}
	for _, s := range sessions {
		step := f.eng.Cancel(s)
		assert.Equal(t, StateCancelled, step.State)
		assert.False(t, step.Session.Active())
		assert.Empty(t, step.Session.Collected)
	}
	assert.Equal(t, StateCancelled, f.eng.Cancel(Session{}).State)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cancellations.WithLabelValues(string(ModeManualCreate))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cancellations.WithLabelValues(string(ModeTemplateCreate))))
}

func TestStateFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	idle := Session{}

	for name, step := range map[string]Step{
		"submit":       f.eng.Submit(ctx, idle, "x"),
		"skip":         f.eng.Skip(ctx, idle),
		"use template": f.eng.UseTemplateValue(ctx, idle),
		"add optional": f.eng.AddOptionalFields(ctx, idle),
		"finish":       f.eng.Finish(ctx, idle),
		"choose":       f.eng.ChooseTemplate(idle, "Trial", false),
		"edit select":  f.eng.SelectEditField(ctx, idle, schema.FieldTag),
		"edit submit":  f.eng.SubmitEdit(ctx, idle, "x"),
	} {
		require.NotNil(t, step.Failure, name)
		assert.Equal(t, FailState, step.Failure.Kind, name)
		assert.Equal(t, StateIdle, step.State, name)
	}
}

func TestCompletion_StrayInputAfterFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	step := f.eng.ChooseTemplate(f.eng.StartTemplate().Session, "Trial", false)
	f.dir.FailNext("create", &directory.RemoteError{Op: "create", Status: 500, Err: errors.New("panel down")})
	step = f.eng.Submit(ctx, step.Session, "kept_user")
	require.Equal(t, StateComplete, step.State)
	failedSession := step.Session

	for name, stray := range map[string]Step{
		"submit":       f.eng.Submit(ctx, failedSession, "oops"),
		"skip":         f.eng.Skip(ctx, failedSession),
		"use template": f.eng.UseTemplateValue(ctx, failedSession),
		"add optional": f.eng.AddOptionalFields(ctx, failedSession),
	} {
		require.NotNil(t, stray.Failure, name)
		assert.Equal(t, FailValidation, stray.Failure.Kind, name)
		assert.Equal(t, "send finish to retry or cancel", stray.Failure.Reason, name)
		assert.Equal(t, StateComplete, stray.State, name)
		assert.True(t, stray.Session.Active(), name)
		assert.Equal(t, "kept_user", stray.Session.Collected[schema.FieldUsername], name)
	}

	step = f.eng.Finish(ctx, failedSession)
	require.Nil(t, step.Failure)
	assert.True(t, step.Created)
	assert.Equal(t, "kept_user", step.Entity.Username)
}

func TestCompletion_RemoteFailureKeepsSessionForRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	f := newFixture(t, WithMetrics(m))
	ctx := context.Background()

	step := f.eng.ChooseTemplate(f.eng.StartTemplate().Session, "Trial", false)
	f.dir.FailNext("create", &directory.RemoteError{Op: "create", Status: 500, Err: errors.New("panel down")})
	step = f.eng.Submit(ctx, step.Session, "retry_me")

	require.NotNil(t, step.Failure)
	assert.Equal(t, FailRemote, step.Failure.Kind)
	assert.Contains(t, step.Failure.Reason, "panel down")
	assert.Equal(t, StateComplete, step.State)
	assert.True(t, step.Session.Active())
	assert.Equal(t, "retry_me", step.Session.Collected[schema.FieldUsername])

	step = f.eng.Finish(ctx, step.Session)
	require.Nil(t, step.Failure)
	assert.True(t, step.Created)
	assert.Equal(t, "retry_me", step.Entity.Username)
	assert.Equal(t, 2, f.dir.Calls("create"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("remote_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("created")))
}

func TestCompletion_DiagnosticNamesFirstBadField(t *testing.T) {
	f := newFixture(t)
	s := Session{
		Mode:          ModeManualCreate,
		State:         StateCollecting,
		PendingFields: []string{schema.FieldUsername},
		Collected: directory.Attributes{
			schema.FieldUsername:    "bad name",
			schema.FieldDeviceLimit: int64(-3),
		},
	}
	step := f.eng.Finish(context.Background(), s)
	require.NotNil(t, step.Failure)
	assert.Equal(t, FailValidation, step.Failure.Kind)
	assert.Equal(t, schema.FieldUsername, step.Failure.Field)
	assert.Equal(t, StateComplete, step.State)
	assert.Equal(t, 0, f.dir.Calls("create"))
}

func TestCompletion_InvalidatesListSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dir.Seed(directory.Entity{UUID: "u-1", Username: "bob_0001"})

	list, ok := f.cache.GetAll(ctx)
	require.True(t, ok)
	require.Len(t, list, 1)

	step := f.eng.ChooseTemplate(f.eng.StartTemplate().Session, "Trial", false)
	step = f.eng.Submit(ctx, step.Session, "new_user")
	require.True(t, step.Created)

	list, ok = f.cache.GetAll(ctx)
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	step := f.eng.Submit(ctx, f.eng.StartManual().Session, "alice_01")
	resumed := f.eng.Resume(ctx, step.Session)
	assert.Equal(t, schema.FieldTrafficLimit, resumed.Prompt.Field)
	assert.Equal(t, StateIdle, f.eng.Resume(ctx, Session{}).State)
}
