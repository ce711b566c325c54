package schedule

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/taskloop/automation/internal/contracts"
	"github.com/taskloop/automation/internal/platform/metrics"
)

// DueClaimer is the slice of the store the poller needs.
type DueClaimer interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]DueReminder, error)
}

// EventPublisher is the narrow publishing surface the poller needs.
type EventPublisher interface {
	Publish(topic, eventType string, occurredAt time.Time, payload contracts.Payload)
}

// Poller claims due triggers on an interval and publishes each as a
// reminder.triggered event. Firing is best-effort by design: a claimed
// trigger whose publish is swallowed by an unreachable bus is not retried.
type Poller struct {
	Store     DueClaimer
	Events    EventPublisher
	Logger    *slog.Logger
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

func NewPoller(store DueClaimer, events EventPublisher, logger *slog.Logger, interval time.Duration, batchSize int) *Poller {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Poller{
		Store:     store,
		Events:    events,
		Logger:    logger,
		Interval:  interval,
		BatchSize: batchSize,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fireDue(ctx)
		}
	}
}

func (p *Poller) fireDue(ctx context.Context) {
	now := p.Now()
	due, err := p.Store.ClaimDue(ctx, now, p.BatchSize)
	if err != nil {
		p.Logger.Error("claiming due reminders failed", "error", err)
		return
	}

	for _, d := range due {
		var trigger contracts.ReminderTriggeredPayload
		if err := json.Unmarshal(d.Payload, &trigger); err != nil {
			p.Logger.Warn("discarding unparseable reminder payload", "key", d.Key, "error", err)
			continue
		}
		p.Events.Publish(contracts.TopicReminders, contracts.TypeReminderTriggered, now, trigger)
		metrics.RemindersFired.Inc()
		p.Logger.Debug("reminder fired", "key", d.Key, "remind_at", d.RemindAt)
	}
}
