// Package reminder schedules due-date reminders and turns triggered
// reminders into in-app notifications.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/taskloop/automation/internal/contracts"
	"github.com/taskloop/automation/internal/ledger"
	"github.com/taskloop/automation/internal/taskstore"
)

// Lead is how far ahead of the due date the reminder fires. Tasks due
// sooner than this get no reminder.
const Lead = 24 * time.Hour

// NotificationTypeTaskReminder is the only notification type this core writes.
const NotificationTypeTaskReminder = "task_reminder"

// Scheduler is the consumed scheduling interface. Triggers are keyed by
// task id, so scheduling the same key again supersedes the previous one and
// cancelling a missing key is a no-op.
type Scheduler interface {
	Schedule(ctx context.Context, key string, at time.Time, payload []byte) error
	Cancel(ctx context.Context, key string) error
}

// EventPublisher is the narrow publishing surface the handler needs.
type EventPublisher interface {
	Publish(topic, eventType string, occurredAt time.Time, payload contracts.Payload)
}

// Service consumes task lifecycle events and reminder events. Every entry
// point that has side effects beyond an idempotent keyed delete is gated on
// the ledger.
type Service struct {
	Ledger        ledger.Ledger
	Scheduler     Scheduler
	Notifications NotificationStore
	Tasks         taskstore.Store
	Events        EventPublisher
	Logger        *slog.Logger
	Now           func() time.Time
}

func NewService(
	led ledger.Ledger,
	scheduler Scheduler,
	notifications NotificationStore,
	tasks taskstore.Store,
	events EventPublisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		Ledger:        led,
		Scheduler:     scheduler,
		Notifications: notifications,
		Tasks:         tasks,
		Events:        events,
		Logger:        logger,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

func scheduleKey(taskID int64) string {
	return strconv.FormatInt(taskID, 10)
}

// HandleTaskCreated schedules a reminder when the new task is due more than
// Lead in the future.
func (s *Service) HandleTaskCreated(ctx context.Context, env contracts.Envelope) error {
	var p contracts.TaskCreatedPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidPayload, err)
	}

	processed, err := s.Ledger.IsProcessed(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if processed {
		return nil
	}

	if err := s.evaluateSchedule(ctx, p.TaskSnapshot, false); err != nil {
		return err
	}
	return s.mark(ctx, env)
}

// HandleTaskUpdated re-derives the schedule from the updated snapshot when
// the update touched scheduling-relevant fields. A due date that moved is
// superseded through the task-id key; a due date that was removed or is no
// longer far enough out cancels the pending trigger. Updates to title, tags
// or priority leave the pending trigger alone.
func (s *Service) HandleTaskUpdated(ctx context.Context, env contracts.Envelope) error {
	var p contracts.TaskUpdatedPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidPayload, err)
	}

	processed, err := s.Ledger.IsProcessed(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if processed {
		return nil
	}

	if !touchesSchedule(p.ChangedFields) {
		return s.mark(ctx, env)
	}

	if err := s.evaluateSchedule(ctx, p.TaskSnapshot, true); err != nil {
		return err
	}
	return s.mark(ctx, env)
}

// touchesSchedule reports whether an update changed anything a pending
// reminder depends on.
func touchesSchedule(changedFields []string) bool {
	for _, f := range changedFields {
		if f == "due_date" || f == "completed" {
			return true
		}
	}
	return false
}

func (s *Service) evaluateSchedule(ctx context.Context, snap contracts.TaskSnapshot, cancelIneligible bool) error {
	log := s.Logger.With("task_id", snap.TaskID, "user_id", snap.UserID)

	eligible := !snap.Completed && snap.DueDate != nil
	var remindAt time.Time
	if eligible {
		remindAt = snap.DueDate.Add(-Lead)
		eligible = remindAt.After(s.Now())
	}

	if !eligible {
		if cancelIneligible {
			if err := s.Scheduler.Cancel(ctx, scheduleKey(snap.TaskID)); err != nil {
				return fmt.Errorf("cancel reminder for task %d: %w", snap.TaskID, err)
			}
			log.Debug("pending reminder cancelled, task no longer eligible")
		}
		return nil
	}

	s.Events.Publish(contracts.TopicReminders, contracts.TypeReminderScheduled, s.Now(), contracts.ReminderScheduledPayload{
		TaskID:   snap.TaskID,
		UserID:   snap.UserID,
		RemindAt: remindAt,
	})
	log.Debug("reminder scheduled", "remind_at", remindAt)
	return nil
}

// HandleReminderScheduled registers the trigger with the scheduling backend.
func (s *Service) HandleReminderScheduled(ctx context.Context, env contracts.Envelope) error {
	var p contracts.ReminderScheduledPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidPayload, err)
	}

	processed, err := s.Ledger.IsProcessed(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if processed {
		return nil
	}

	task, err := s.Tasks.GetTask(ctx, p.TaskID, p.UserID)
	if errors.Is(err, taskstore.ErrTaskNotFound) {
		s.Logger.Info("task vanished before its reminder was registered",
			"event_id", env.ID, "task_id", p.TaskID)
		return s.mark(ctx, env)
	}
	if err != nil {
		return fmt.Errorf("fetch task %d: %w", p.TaskID, err)
	}

	dueDate := p.RemindAt.Add(Lead)
	if task.DueDate != nil {
		dueDate = *task.DueDate
	}
	trigger, err := json.Marshal(contracts.ReminderTriggeredPayload{
		TaskID:    p.TaskID,
		UserID:    p.UserID,
		TaskTitle: task.Title,
		DueDate:   dueDate,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidPayload, err)
	}

	if err := s.Scheduler.Schedule(ctx, scheduleKey(p.TaskID), p.RemindAt, trigger); err != nil {
		return fmt.Errorf("schedule reminder for task %d: %w", p.TaskID, err)
	}
	return s.mark(ctx, env)
}

// HandleTaskCompleted cancels the pending trigger when a task is completed.
// The keyed delete is idempotent by construction, so this runs unledgered:
// the completion event's ledger record belongs to the recurring handler,
// which shares the task.completed route.
func (s *Service) HandleTaskCompleted(ctx context.Context, env contracts.Envelope) error {
	var p contracts.TaskCompletedPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidPayload, err)
	}

	// Uncompleting leaves any pending reminder alone.
	if !p.Completed {
		return nil
	}

	if err := s.Scheduler.Cancel(ctx, scheduleKey(p.TaskID)); err != nil {
		return fmt.Errorf("cancel reminder for task %d: %w", p.TaskID, err)
	}
	return nil
}

// HandleTaskDeleted cancels the pending trigger for a deleted task.
func (s *Service) HandleTaskDeleted(ctx context.Context, env contracts.Envelope) error {
	var p contracts.TaskDeletedPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidPayload, err)
	}

	processed, err := s.Ledger.IsProcessed(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if processed {
		return nil
	}

	if err := s.Scheduler.Cancel(ctx, scheduleKey(p.TaskID)); err != nil {
		return fmt.Errorf("cancel reminder for task %d: %w", p.TaskID, err)
	}
	return s.mark(ctx, env)
}

// HandleReminderTriggered writes the in-app notification. The task's
// existence is re-checked first: a trigger racing a deletion must not
// notify about a task that is gone.
func (s *Service) HandleReminderTriggered(ctx context.Context, env contracts.Envelope) error {
	var p contracts.ReminderTriggeredPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidPayload, err)
	}

	processed, err := s.Ledger.IsProcessed(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if processed {
		return nil
	}

	_, err = s.Tasks.GetTask(ctx, p.TaskID, p.UserID)
	if errors.Is(err, taskstore.ErrTaskNotFound) {
		s.Logger.Info("reminder fired for a task that no longer exists, skipping notification",
			"event_id", env.ID, "task_id", p.TaskID)
		return s.mark(ctx, env)
	}
	if err != nil {
		return fmt.Errorf("fetch task %d: %w", p.TaskID, err)
	}

	_, err = s.Notifications.CreateNotification(ctx, p.UserID, NotificationTypeTaskReminder,
		fmt.Sprintf("Reminder: %s", p.TaskTitle),
		fmt.Sprintf("%q is due %s", p.TaskTitle, p.DueDate.Format(time.RFC1123)),
		map[string]any{"task_id": p.TaskID},
	)
	if err != nil {
		return fmt.Errorf("create notification for task %d: %w", p.TaskID, err)
	}

	s.Logger.Info("reminder notification created", "event_id", env.ID, "task_id", p.TaskID, "user_id", p.UserID)
	return s.mark(ctx, env)
}

func (s *Service) mark(ctx context.Context, env contracts.Envelope) error {
	if err := s.Ledger.MarkProcessed(ctx, env.ID, env.Type); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}
