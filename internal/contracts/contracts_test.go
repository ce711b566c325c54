package contracts

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func snapshot() TaskSnapshot {
	due := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return TaskSnapshot{
		TaskID:   42,
		UserID:   "user-1",
		Title:    "Water the plants",
		Priority: PriorityMedium,
		Tags:     []string{"home"},
		DueDate:  &due,
	}
}

func TestTaskSnapshot_Valid(t *testing.T) {
	if err := snapshot().Validate(); err != nil {
		t.Fatalf("expected valid snapshot, got %v", err)
	}
}

func TestTaskSnapshot_RecurringRequiresInterval(t *testing.T) {
	s := snapshot()
	s.IsRecurring = true
	if err := s.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for missing interval, got %v", err)
	}

	s.RecurringInterval = "fortnightly"
	if err := s.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for unknown interval, got %v", err)
	}

	s.RecurringInterval = IntervalWeekly
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid recurring snapshot, got %v", err)
	}
}

func TestTaskSnapshot_IntervalForbiddenWhenNotRecurring(t *testing.T) {
	s := snapshot()
	s.RecurringInterval = IntervalDaily
	if err := s.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for stray interval, got %v", err)
	}
}

func TestTaskSnapshot_RejectsUnknownPriority(t *testing.T) {
	s := snapshot()
	s.Priority = "urgent"
	if err := s.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for unknown priority, got %v", err)
	}
}

func TestEnvelope_Valid(t *testing.T) {
	data, _ := json.Marshal(TaskDeletedPayload{TaskID: 7, UserID: "user-1"})
	env := Envelope{
		SpecVersion: "1.0",
		Type:        TypeTaskDeleted,
		Source:      EventSource,
		ID:          "evt-1",
		Time:        time.Now().UTC(),
		OrderingKey: "user-1",
		Data:        data,
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("expected valid envelope, got %v", err)
	}
}

func TestEnvelope_OrderingKeyMismatch(t *testing.T) {
	data, _ := json.Marshal(TaskDeletedPayload{TaskID: 7, UserID: "user-1"})
	env := Envelope{
		Type:        TypeTaskDeleted,
		ID:          "evt-1",
		OrderingKey: "user-2",
		Data:        data,
	}
	if err := env.Validate(); !errors.Is(err, ErrOrderingKeyMismatch) {
		t.Fatalf("expected ErrOrderingKeyMismatch, got %v", err)
	}
}

func TestEnvelope_UnknownType(t *testing.T) {
	data, _ := json.Marshal(TaskDeletedPayload{TaskID: 7, UserID: "user-1"})
	env := Envelope{
		Type:        "task.archived",
		ID:          "evt-1",
		OrderingKey: "user-1",
		Data:        data,
	}
	if err := env.Validate(); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestTopicFor(t *testing.T) {
	if got := TopicFor(TypeTaskCompleted); got != TopicTasks {
		t.Fatalf("expected %q, got %q", TopicTasks, got)
	}
	if got := TopicFor(TypeReminderTriggered); got != TopicReminders {
		t.Fatalf("expected %q, got %q", TopicReminders, got)
	}
}

func TestReminderPayloads_Validate(t *testing.T) {
	sched := ReminderScheduledPayload{TaskID: 7, UserID: "user-1", RemindAt: time.Now()}
	if err := sched.Validate(); err != nil {
		t.Fatalf("expected valid reminder.scheduled payload, got %v", err)
	}
	sched.RemindAt = time.Time{}
	if err := sched.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for zero remind_at, got %v", err)
	}

	trig := ReminderTriggeredPayload{TaskID: 7, UserID: "user-1", TaskTitle: "Standup", DueDate: time.Now()}
	if err := trig.Validate(); err != nil {
		t.Fatalf("expected valid reminder.triggered payload, got %v", err)
	}
	trig.TaskTitle = ""
	if err := trig.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for missing title, got %v", err)
	}
}
