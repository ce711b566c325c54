// Package events contains the publishing and dispatching core: the
// fire-and-forget publisher on the way out, and the decision-driven
// dispatcher with its transport bindings on the way in.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nuid"

	"github.com/taskloop/automation/internal/contracts"
	"github.com/taskloop/automation/internal/messaging"
	"github.com/taskloop/automation/internal/platform/metrics"
)

type PublishFunc func(subject string, payload []byte) error

// Publisher serializes domain events into envelopes and hands them to the
// transport. It never returns an error: a task mutation must succeed for the
// user even when the event bus is unreachable, so every failure is logged
// with full context and swallowed here.
type Publisher struct {
	Transport PublishFunc
	Source    string
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

func NewPublisher(transport PublishFunc, logger *slog.Logger) *Publisher {
	return &Publisher{
		Transport: transport,
		Source:    contracts.EventSource,
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     nuid.Next,
	}
}

// Publish validates the payload, wraps it in an envelope with a fresh id,
// the occurrence time and ordering key = owning user, and submits it on the
// topic's per-user subject. occurredAt is the time of the triggering
// operation; a zero value falls back to now.
func (p *Publisher) Publish(topic, eventType string, occurredAt time.Time, payload contracts.Payload) {
	log := p.Logger.With("topic", topic, "event_type", eventType)

	if err := payload.Validate(); err != nil {
		log.Warn("refusing to publish invalid event payload", "error", err)
		metrics.EventsPublished.WithLabelValues(topic, eventType, "invalid").Inc()
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("event payload serialization failed", "error", err)
		metrics.EventsPublished.WithLabelValues(topic, eventType, "invalid").Inc()
		return
	}

	if occurredAt.IsZero() {
		occurredAt = p.Now()
	}
	env := contracts.Envelope{
		SpecVersion: "1.0",
		Type:        eventType,
		Source:      p.Source,
		ID:          p.NewID(),
		Time:        occurredAt,
		OrderingKey: payload.OwnerID(),
		Data:        data,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		log.Error("event envelope serialization failed", "event_id", env.ID, "error", err)
		metrics.EventsPublished.WithLabelValues(topic, eventType, "invalid").Inc()
		return
	}

	subject := messaging.Subject(topic, env.OrderingKey)
	if err := p.Transport(subject, raw); err != nil {
		log.Error("event publish failed, dropping event",
			"event_id", env.ID,
			"subject", subject,
			"user_id", env.OrderingKey,
			"error", err)
		metrics.EventsPublished.WithLabelValues(topic, eventType, "error").Inc()
		return
	}

	metrics.EventsPublished.WithLabelValues(topic, eventType, "ok").Inc()
	log.Debug("event published", "event_id", env.ID, "subject", subject)
}
