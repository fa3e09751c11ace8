package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rongwang/land-rental-server/internal/apperror"
)

// Event describes one state-changing operation and its outcome
type Event struct {
	Action   string
	ActorID  string
	EntityID string
	Fields   map[string]any
	Err      error
}

// Sink receives audit events. Transport is the sink's business.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// SlogSink writes audit events to a structured logger
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink on top of logger
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger.With("component", "audit")}
}

func (s *SlogSink) Record(ctx context.Context, event Event) {
	attrs := []any{
		"action", event.Action,
		"actor_id", event.ActorID,
		"entity_id", event.EntityID,
	}
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}

	if event.Err != nil {
		attrs = append(attrs, "outcome", "failure", "code", string(apperror.KindOf(event.Err)), "error", event.Err.Error())
		s.logger.WarnContext(ctx, "audit", attrs...)
		return
	}

	attrs = append(attrs, "outcome", "success")
	s.logger.InfoContext(ctx, "audit", attrs...)
}

// MemorySink keeps events in memory
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Record(_ context.Context, event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of the recorded events
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
