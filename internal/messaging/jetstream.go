package messaging

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/taskloop/automation/internal/contracts"
)

const (
	tasksStream     = "TASKS"
	remindersStream = "REMINDERS"
)

// Delivery policy assumed by the dispatcher: one initial delivery plus three
// redeliveries backed off at 1s/2s/4s, then the transport dead-letters via
// the max-deliveries advisory.
const MaxDeliver = 4

// MaxDeliveriesAdvisory is the subject JetStream publishes to when a message
// exhausts MaxDeliver. Watching it is the dead-letter hook.
const MaxDeliveriesAdvisory = "$JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES.>"

// Subject returns the per-user subject for one topic. The user id is the
// ordering key: all of one user's events share a subject and therefore
// arrive in publish order.
func Subject(topic, userID string) string {
	return topic + ".user." + userID
}

// TopicWildcard matches every user subject under a topic.
func TopicWildcard(topic string) string {
	return topic + ".user.>"
}

// DeadLetterSubject names the advisory destination for a topic, reported on
// the subscription discovery endpoint.
func DeadLetterSubject(topic string) string {
	return "$JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES." + StreamFor(topic) + ".*"
}

// StreamFor maps a topic to its stream name.
func StreamFor(topic string) string {
	if topic == contracts.TopicReminders {
		return remindersStream
	}
	return tasksStream
}

// EnsureStreams creates (or validates) the two streams required locally:
// - tasks.user.>
// - reminders.user.>
func EnsureStreams(js nats.JetStreamContext) error {
	streams := []struct {
		name    string
		subject string
	}{
		{tasksStream, TopicWildcard(contracts.TopicTasks)},
		{remindersStream, TopicWildcard(contracts.TopicReminders)},
	}
	for _, s := range streams {
		if _, err := js.StreamInfo(s.name); err != nil {
			if !errors.Is(err, nats.ErrStreamNotFound) {
				return err
			}
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      s.name,
				Subjects:  []string{s.subject},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return fmt.Errorf("create stream %s: %w", s.name, addErr)
			}
		}
	}
	return nil
}
