// Package metrics exposes the Prometheus collectors shared by the
// automation services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts publish attempts by topic, event type and
	// outcome ("ok", "error", "invalid").
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_events_published_total",
		Help: "Domain events handed to the transport, by outcome.",
	}, []string{"topic", "type", "status"})

	// EventsProcessed counts dispatcher decisions by event type and
	// decision ("ack", "retry", "drop").
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_events_processed_total",
		Help: "Inbound event deliveries, by dispatcher decision.",
	}, []string{"type", "decision"})

	// EventsDeadLettered counts max-deliveries advisories by stream.
	EventsDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_events_deadlettered_total",
		Help: "Events that exhausted their redelivery budget.",
	}, []string{"stream"})

	// RemindersFired counts reminder triggers published by the scheduler.
	RemindersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_reminders_fired_total",
		Help: "Due reminders claimed and published as reminder.triggered.",
	})
)
