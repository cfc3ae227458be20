package formguard

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types.
const (
	EventSubmissionAllowed  = "submission_allowed"
	EventSubmissionDegraded = "submission_degraded"
	EventSubmissionDenied   = "submission_denied"
	EventTokenIssued        = "token_issued"
)

// AuditEvent is one verdict (or token issue) as seen by audit sinks.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	VerdictID string            `json:"verdict_id,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Identity  string            `json:"identity,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Degraded  []string          `json:"degraded,omitempty"`
	Status    int               `json:"status,omitempty"`
	Score     float64           `json:"score,omitempty"`
	Deferred  bool              `json:"deferred,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the dispatcher goroutine. Emit must honor ctx.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel. Useful in tests.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(append(data, '\n'))
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []AuditSink

func (m MultiSink) Emit(ctx context.Context, event AuditEvent) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

func auditEventFor(v Verdict, p Policy, identity string, deferred bool, at time.Time) AuditEvent {
	ev := AuditEvent{
		Timestamp: at,
		VerdictID: v.ID,
		Endpoint:  p.Endpoint,
		Identity:  identity,
		Outcome:   v.Outcome.String(),
		Reason:    string(v.Reason),
		Status:    v.Status,
		Score:     v.Score,
		Deferred:  deferred,
	}
	switch v.Outcome {
	case OutcomeDenied:
		ev.EventType = EventSubmissionDenied
	case OutcomeAllowedDegraded:
		ev.EventType = EventSubmissionDegraded
		ev.Degraded = make([]string, 0, len(v.Degraded))
		for _, d := range v.Degraded {
			ev.Degraded = append(ev.Degraded, string(d))
		}
	default:
		ev.EventType = EventSubmissionAllowed
	}
	return ev
}
