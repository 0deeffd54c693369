// Package progress publishes indexing progress to pluggable sinks. Sinks
// are weakly held: a failing sink is logged and never fails the operation
// publishing to it.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status of a progress token.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends the token's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Event is one progress emission. Completed and Total are floating so
// sub-item progress can be expressed.
type Event struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Completed float64        `json:"completed"`
	Total     float64        `json:"total"`
	Message   string         `json:"message,omitempty"`
	Status    Status         `json:"status"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Sink consumes progress events.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}

// LogSink writes events to the structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{
		"id", ev.ID,
		"completed", ev.Completed,
		"total", ev.Total,
		"status", string(ev.Status),
	}
	if ev.Message != "" {
		args = append(args, "message", ev.Message)
	}
	for k, v := range ev.Attrs {
		args = append(args, k, v)
	}
	logger.InfoContext(ctx, ev.Label, args...)
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}

// tokenState tracks per-ID rate limiting.
type tokenState struct {
	lastEmit      time.Time
	lastCompleted float64
	seen          bool
}

// RateLimited wraps a sink, suppressing events unless enough time has
// passed, enough progress was made, or the status is terminal. Because
// every event carries full state, the first event after a suppressed run
// reflects the latest progress.
type RateLimited struct {
	next        Sink
	minInterval time.Duration
	minDelta    float64

	mu     sync.Mutex
	tokens map[string]*tokenState
	now    func() time.Time
}

// NewRateLimited builds the rate-limiting wrapper. Non-positive arguments
// disable the respective gate.
func NewRateLimited(next Sink, minInterval time.Duration, minDelta float64) *RateLimited {
	return &RateLimited{
		next:        next,
		minInterval: minInterval,
		minDelta:    minDelta,
		tokens:      map[string]*tokenState{},
		now:         time.Now,
	}
}

func (r *RateLimited) Publish(ctx context.Context, ev Event) {
	if !r.admit(ev) {
		return
	}
	r.next.Publish(ctx, ev)
}

func (r *RateLimited) admit(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	st, ok := r.tokens[ev.ID]
	if !ok {
		st = &tokenState{}
		r.tokens[ev.ID] = st
	}

	emit := ev.Status.Terminal() || !st.seen ||
		(r.minInterval > 0 && now.Sub(st.lastEmit) >= r.minInterval) ||
		(r.minDelta > 0 && ev.Completed-st.lastCompleted >= r.minDelta)

	if emit {
		st.seen = true
		st.lastEmit = now
		st.lastCompleted = ev.Completed
		if ev.Status.Terminal() {
			delete(r.tokens, ev.ID)
		}
	}
	return emit
}
