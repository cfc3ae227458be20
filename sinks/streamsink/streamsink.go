// Package streamsink publishes formguard audit events through a watermill Publisher,
// usually a Redis stream in production and a Go channel in tests.
package streamsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/MrEthical07/formguard"
)

// DefaultTopic is the topic events are published on.
const DefaultTopic = "formguard.verdicts"

// Sink implements formguard.AuditSink.
type Sink struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
	// skipTokens drops token_issued events, which are high volume and carry no decision.
	skipTokens bool
}

type Option func(*Sink)

func WithTopic(topic string) Option {
	return func(s *Sink) {
		if topic != "" {
			s.topic = topic
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenEvents toggles publishing of token_issued events. Off by default.
func WithTokenEvents(enabled bool) Option {
	return func(s *Sink) { s.skipTokens = !enabled }
}

func New(publisher message.Publisher, opts ...Option) *Sink {
	s := &Sink{
		publisher:  publisher,
		topic:      DefaultTopic,
		logger:     slog.Default(),
		skipTokens: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit publishes the event and logs failures.
func (s *Sink) Emit(ctx context.Context, event formguard.AuditEvent) {
	if err := s.Publish(ctx, event); err != nil {
		s.logger.Warn("formguard: stream publish failed", "topic", s.topic, "event_type", event.EventType, "error", err)
	}
}

// Publish sends one event. The message UUID is the verdict ID when present.
func (s *Sink) Publish(ctx context.Context, event formguard.AuditEvent) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	if s.skipTokens && event.EventType == formguard.EventTokenIssued {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id := event.VerdictID
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", event.EventType)
	if event.Outcome != "" {
		msg.Metadata.Set("outcome", event.Outcome)
	}
	if event.Reason != "" {
		msg.Metadata.Set("reason", event.Reason)
	}

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
