package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/event"
	"github.com/matthewbaird/accountdesk/internal/logger"
)

type collector struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (c *collector) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestBus_DispatchesToAllSubscribers(t *testing.T) {
	bus := New(8, nil)
	a, b := &collector{}, &collector{}
	bus.Subscribe("a", a)
	bus.Subscribe("b", b)

	ctx, cancel := context.WithCancel(context.Background())
	bus.Start(ctx)

	bus.Publish(ctx, event.NewAccountAction(directory.ActionEnable, "id-1", "1", false))
	bus.Publish(ctx, event.NewAccountAction(directory.ActionDisable, "id-2", "1", false))

	require.Eventually(t, func() bool { return a.count() == 2 && b.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	bus.Wait()
	assert.Equal(t, event.AccountEnabled, a.events[0].EventType)
}

func TestBus_DrainsOnCancel(t *testing.T) {
	bus := New(8, nil)
	c := &collector{}
	bus.Subscribe("c", c)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		bus.Publish(ctx, event.NewAccountAction(directory.ActionRevoke, "id", "1", false))
	}
	cancel()
	require.NoError(t, bus.Run(ctx))
	assert.Equal(t, 3, c.count())
}

func TestBus_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	bus := New(1, &logger.Logger{SugaredLogger: zap.New(core).Sugar()})

	ctx := context.Background()
	bus.Publish(ctx, event.NewAccountAction(directory.ActionEnable, "a", "1", false))
	bus.Publish(ctx, event.NewAccountAction(directory.ActionEnable, "b", "1", false))

	assert.Equal(t, 1, logs.FilterMessage("buffer full, dropping event").Len())
}

func TestBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := New(4, nil)
	bus.Subscribe("broken", HandlerFunc(func(context.Context, event.DomainEvent) error {
		return errors.New("nope")
	}))
	c := &collector{}
	bus.Subscribe("ok", c)

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, event.NewAccountAction(directory.ActionDelete, "x", "1", false))
	cancel()
	require.NoError(t, bus.Run(ctx))
	assert.Equal(t, 1, c.count())
}

func TestMetricsConsumer(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc, err := NewMetricsConsumer(reg)
	require.NoError(t, err)

	require.NoError(t, mc.HandleEvent(context.Background(), event.NewAccountAction(directory.ActionEnable, "a", "1", false)))
	require.NoError(t, mc.HandleEvent(context.Background(), event.NewAccountAction(directory.ActionEnable, "b", "1", false)))

	assert.Equal(t, 2.0, testutil.ToFloat64(mc.events.WithLabelValues(event.AccountEnabled, "access")))
}

func TestLogConsumer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	lc := NewLogConsumer(&logger.Logger{SugaredLogger: zap.New(core).Sugar()})
	require.NoError(t, lc.HandleEvent(context.Background(), event.NewAccountAction(directory.ActionDisable, "abc", "1", false)))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Account abc disabled", logs.All()[0].Message)
}
