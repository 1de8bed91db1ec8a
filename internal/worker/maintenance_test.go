package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/accountdesk/internal/session"
	"github.com/matthewbaird/accountdesk/internal/wizard"
)

type countingSweeper struct{ calls atomic.Int32 }

func (s *countingSweeper) SweepExpired() int {
	s.calls.Add(1)
	return 2
}

type failingCleaner struct{}

func (failingCleaner) Cleanup(context.Context) (int, error) { return 0, errors.New("db down") }

func TestTick_SweepsAndCleans(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	store := session.NewMemoryStore(time.Minute)
	store.SetClock(func() time.Time { return now })
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "old", wizard.Session{}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Put(ctx, "fresh", wizard.Session{}))

	sw := &countingSweeper{}
	w := NewMaintenanceWorker(sw, store, time.Hour, nil)
	swept, cleaned := w.Tick(ctx)

	assert.Equal(t, 2, swept)
	assert.Equal(t, 1, cleaned)
	assert.Equal(t, 1, store.Len())
}

func TestTick_CleanupErrorIsLogged(t *testing.T) {
	w := NewMaintenanceWorker(nil, failingCleaner{}, time.Hour, nil)
	swept, cleaned := w.Tick(context.Background())
	assert.Zero(t, swept)
	assert.Zero(t, cleaned)
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	sw := &countingSweeper{}
	w := NewMaintenanceWorker(sw, nil, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return sw.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
