package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventSource identifies this service in every published envelope.
const EventSource = "task-automation"

// Topics map one-to-one onto transport streams so task and reminder
// traffic can be scaled and retained independently.
const (
	TopicTasks     = "tasks"
	TopicReminders = "reminders"
)

// Closed set of event types carried on the two topics.
const (
	TypeTaskCreated       = "task.created"
	TypeTaskUpdated       = "task.updated"
	TypeTaskCompleted     = "task.completed"
	TypeTaskDeleted       = "task.deleted"
	TypeReminderScheduled = "reminder.scheduled"
	TypeReminderTriggered = "reminder.triggered"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	IntervalDaily   = "daily"
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
)

var ErrInvalidPayload = errors.New("invalid event payload")
var ErrUnknownEventType = errors.New("unknown event type")
var ErrOrderingKeyMismatch = errors.New("ordering key does not match payload user_id")

// Envelope is the CloudEvents-style wire format for every published event.
// OrderingKey must equal the user_id inside Data; the dispatcher drops
// envelopes that violate this.
type Envelope struct {
	SpecVersion string          `json:"specversion"`
	Type        string          `json:"type"`
	Source      string          `json:"source"`
	ID          string          `json:"id"`
	Time        time.Time       `json:"time"`
	OrderingKey string          `json:"ordering_key"`
	Data        json.RawMessage `json:"data"`
}

// Payload is implemented by every event payload type.
type Payload interface {
	Validate() error
	OwnerID() string
}

// KnownType reports whether t belongs to the closed event type set.
func KnownType(t string) bool {
	switch t {
	case TypeTaskCreated, TypeTaskUpdated, TypeTaskCompleted, TypeTaskDeleted,
		TypeReminderScheduled, TypeReminderTriggered:
		return true
	default:
		return false
	}
}

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType string) string {
	switch eventType {
	case TypeReminderScheduled, TypeReminderTriggered:
		return TopicReminders
	default:
		return TopicTasks
	}
}

// Validate checks the structural envelope invariants, including the
// ordering-key/user_id equality.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPayload)
	}
	if !KnownType(e.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if e.OrderingKey == "" {
		return fmt.Errorf("%w: missing ordering_key", ErrInvalidPayload)
	}
	var owner struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(e.Data, &owner); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if owner.UserID != e.OrderingKey {
		return fmt.Errorf("%w: key %q, payload user %q", ErrOrderingKeyMismatch, e.OrderingKey, owner.UserID)
	}
	return nil
}

func validPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

func validInterval(i string) bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return true
	default:
		return false
	}
}

// validateRecurrence enforces that recurring_interval is present and valid
// exactly when is_recurring is set.
func validateRecurrence(isRecurring bool, interval string) error {
	if isRecurring && !validInterval(interval) {
		return fmt.Errorf("%w: recurring task requires a valid recurring_interval, got %q", ErrInvalidPayload, interval)
	}
	if !isRecurring && interval != "" {
		return fmt.Errorf("%w: recurring_interval set on a non-recurring task", ErrInvalidPayload)
	}
	return nil
}

// TaskSnapshot carries the bounded task fields that ride inside task event
// payloads. Free-text history never crosses the wire.
type TaskSnapshot struct {
	TaskID            int64      `json:"task_id"`
	UserID            string     `json:"user_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Priority          string     `json:"priority"`
	Tags              []string   `json:"tags"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurringInterval string     `json:"recurring_interval,omitempty"`
	Completed         bool       `json:"completed"`
}

func (s TaskSnapshot) Validate() error {
	if s.TaskID <= 0 {
		return fmt.Errorf("%w: missing task_id", ErrInvalidPayload)
	}
	if s.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}
	if s.Title == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidPayload)
	}
	if !validPriority(s.Priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidPayload, s.Priority)
	}
	return validateRecurrence(s.IsRecurring, s.RecurringInterval)
}

func (s TaskSnapshot) OwnerID() string { return s.UserID }

// TaskCreatedPayload is the task.created event body.
type TaskCreatedPayload struct {
	TaskSnapshot
}

// TaskUpdatedPayload is the task.updated event body. ChangedFields names the
// task fields the mutation touched.
type TaskUpdatedPayload struct {
	TaskSnapshot
	ChangedFields []string `json:"changed_fields"`
}

// TaskCompletedPayload is the task.completed event body. Completed carries
// the new state, so an "uncomplete" toggle arrives as Completed=false.
type TaskCompletedPayload struct {
	TaskID            int64      `json:"task_id"`
	UserID            string     `json:"user_id"`
	Completed         bool       `json:"completed"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurringInterval string     `json:"recurring_interval,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
}

func (p TaskCompletedPayload) Validate() error {
	if p.TaskID <= 0 {
		return fmt.Errorf("%w: missing task_id", ErrInvalidPayload)
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}
	return validateRecurrence(p.IsRecurring, p.RecurringInterval)
}

func (p TaskCompletedPayload) OwnerID() string { return p.UserID }

// TaskDeletedPayload is the task.deleted event body.
type TaskDeletedPayload struct {
	TaskID int64  `json:"task_id"`
	UserID string `json:"user_id"`
}

func (p TaskDeletedPayload) Validate() error {
	if p.TaskID <= 0 {
		return fmt.Errorf("%w: missing task_id", ErrInvalidPayload)
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}
	return nil
}

func (p TaskDeletedPayload) OwnerID() string { return p.UserID }

// ReminderScheduledPayload is the reminder.scheduled event body.
type ReminderScheduledPayload struct {
	TaskID   int64     `json:"task_id"`
	UserID   string    `json:"user_id"`
	RemindAt time.Time `json:"remind_at"`
}

func (p ReminderScheduledPayload) Validate() error {
	if p.TaskID <= 0 {
		return fmt.Errorf("%w: missing task_id", ErrInvalidPayload)
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}
	if p.RemindAt.IsZero() {
		return fmt.Errorf("%w: missing remind_at", ErrInvalidPayload)
	}
	return nil
}

func (p ReminderScheduledPayload) OwnerID() string { return p.UserID }

// ReminderTriggeredPayload is the reminder.triggered event body, emitted by
// the scheduling backend when remind_at arrives.
type ReminderTriggeredPayload struct {
	TaskID    int64     `json:"task_id"`
	UserID    string    `json:"user_id"`
	TaskTitle string    `json:"task_title"`
	DueDate   time.Time `json:"due_date"`
}

func (p ReminderTriggeredPayload) Validate() error {
	if p.TaskID <= 0 {
		return fmt.Errorf("%w: missing task_id", ErrInvalidPayload)
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}
	if p.TaskTitle == "" {
		return fmt.Errorf("%w: missing task_title", ErrInvalidPayload)
	}
	return nil
}

func (p ReminderTriggeredPayload) OwnerID() string { return p.UserID }
