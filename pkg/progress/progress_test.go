package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Publish(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func rateLimitedWithClock(next Sink, interval time.Duration, delta float64) (*RateLimited, *time.Time) {
	now := time.Unix(1000, 0)
	rl := NewRateLimited(next, interval, delta)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimitedSuppressesWithinWindow(t *testing.T) {
	cap := &captureSink{}
	rl, now := rateLimitedWithClock(cap, time.Second, 0)
	ctx := context.Background()

	rl.Publish(ctx, Event{ID: "t", Completed: 1, Status: StatusRunning})
	rl.Publish(ctx, Event{ID: "t", Completed: 2, Status: StatusRunning})
	rl.Publish(ctx, Event{ID: "t", Completed: 3, Status: StatusRunning})
	require.Len(t, cap.all(), 1, "only the first event inside the window passes")

	*now = now.Add(time.Second)
	rl.Publish(ctx, Event{ID: "t", Completed: 4, Status: StatusRunning})
	events := cap.all()
	require.Len(t, events, 2)
	assert.Equal(t, 4.0, events[1].Completed,
		"the event after the window reopens carries the latest progress")
}

func TestRateLimitedDeltaGate(t *testing.T) {
	cap := &captureSink{}
	rl, _ := rateLimitedWithClock(cap, time.Hour, 5)
	ctx := context.Background()

	rl.Publish(ctx, Event{ID: "t", Completed: 0, Status: StatusRunning})
	rl.Publish(ctx, Event{ID: "t", Completed: 3, Status: StatusRunning})
	rl.Publish(ctx, Event{ID: "t", Completed: 5, Status: StatusRunning})
	events := cap.all()
	require.Len(t, events, 2)
	assert.Equal(t, 5.0, events[1].Completed)
}

func TestRateLimitedTerminalAlwaysEmits(t *testing.T) {
	cap := &captureSink{}
	rl, _ := rateLimitedWithClock(cap, time.Hour, 1000)
	ctx := context.Background()

	rl.Publish(ctx, Event{ID: "t", Completed: 0, Status: StatusRunning})
	rl.Publish(ctx, Event{ID: "t", Completed: 1, Status: StatusRunning})
	rl.Publish(ctx, Event{ID: "t", Completed: 2, Status: StatusCompleted})
	events := cap.all()
	require.Len(t, events, 2)
	assert.Equal(t, StatusCompleted, events[1].Status)
}

func TestRateLimitedTracksTokensIndependently(t *testing.T) {
	cap := &captureSink{}
	rl, _ := rateLimitedWithClock(cap, time.Hour, 0)
	ctx := context.Background()

	rl.Publish(ctx, Event{ID: "a", Status: StatusRunning})
	rl.Publish(ctx, Event{ID: "b", Status: StatusRunning})
	assert.Len(t, cap.all(), 2, "each token gets its first emission")
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	MultiSink{a, b}.Publish(context.Background(), Event{ID: "x", Status: StatusRunning})
	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestMCPSinkDelegatesWithoutServer(t *testing.T) {
	cap := &captureSink{}
	sink := NewMCPSink(nil, cap, nil)
	sink.Publish(context.Background(), Event{ID: "x", Status: StatusRunning})
	assert.Len(t, cap.all(), 1)
}
