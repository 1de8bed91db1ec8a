package bulk

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/accountdesk/internal/cache"
	"github.com/matthewbaird/accountdesk/internal/directory"
)

type recordingCache struct{ invalidated []string }

func (c *recordingCache) InvalidateOne(id string) { c.invalidated = append(c.invalidated, id) }

func TestApplyToAll_IsolatesFailures(t *testing.T) {
	rc := &recordingCache{}
	r := NewRunner(rc, nil)

	var order []string
	res := r.ApplyToAll(context.Background(), []string{"id1", "id2", "id3"}, func(_ context.Context, id string) error {
		order = append(order, id)
		if id == "id2" {
			return errors.New("boom")
		}
		return nil
	})

	assert.Equal(t, []string{"id1", "id2", "id3"}, order)
	assert.Equal(t, map[string]bool{"id1": true, "id2": false, "id3": true}, res.Outcomes)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"id2"}, res.FailedIDs)
	assert.Equal(t, "boom", res.Errors["id2"])
	assert.Equal(t, []string{"id1", "id3"}, rc.invalidated)
}

func TestApplyToAll_RecoversPanics(t *testing.T) {
	r := NewRunner(nil, nil)
	var res Result
	require.NotPanics(t, func() {
		res = r.ApplyToAll(context.Background(), []string{"a", "b"}, func(_ context.Context, id string) error {
			if id == "a" {
				panic("nil map")
			}
			return nil
		})
	})
	assert.False(t, res.Outcomes["a"])
	assert.True(t, res.Outcomes["b"])
	assert.Contains(t, res.Errors["a"], "nil map")
}

func TestApplyToAll_DuplicateIDsRunOnce(t *testing.T) {
	r := NewRunner(nil, nil)
	calls := 0
	res := r.ApplyToAll(context.Background(), []string{"a", "a"}, func(context.Context, string) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Succeeded)
}

func TestPreview(t *testing.T) {
	res := Result{FailedIDs: []string{"1", "2", "3", "4", "5", "6", "7"}}
	shown, more := res.Preview(PreviewLimit)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, shown)
	assert.Equal(t, 2, more)

	shown, more = Result{FailedIDs: []string{"1"}}.Preview(PreviewLimit)
	assert.Equal(t, []string{"1"}, shown)
	assert.Zero(t, more)
}

func TestApplyToAll_WithDirectoryAndCache(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemoryClient()
	dir.Seed(directory.Entity{UUID: "u-1", Username: "one_0001"}, directory.Entity{UUID: "u-2", Username: "two_0002"})
	c := cache.New(dir)
	c.GetOne(ctx, "u-1")
	c.GetOne(ctx, "u-2")

	reg := prometheus.NewRegistry()
	r := NewRunner(c, nil)
	require.NoError(t, r.RegisterMetrics(reg))

	res := r.ApplyToAll(ctx, []string{"u-1", "ghost", "u-2"}, func(ctx context.Context, id string) error {
		return directory.Apply(ctx, dir, directory.ActionDisable, id)
	})
	assert.Equal(t, []string{"ghost"}, res.FailedIDs)

	for _, id := range []string{"u-1", "u-2"} {
		e, ok := c.GetOne(ctx, id)
		require.True(t, ok)
		assert.Equal(t, directory.StatusDisabled, e.Status)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(r.items.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.items.WithLabelValues("failed")))
}
