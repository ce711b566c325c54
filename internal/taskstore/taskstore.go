// Package taskstore defines the narrow interface to the external task CRUD
// service. The automation core never owns task rows; it reads and creates
// them through this boundary.
package taskstore

import (
	"context"
	"errors"
	"time"
)

// ErrTaskNotFound is the explicit not-found variant; handlers branch on it
// instead of catching transport errors.
var ErrTaskNotFound = errors.New("task not found")

// Task is the full task record as the external store returns it.
type Task struct {
	ID                int64      `json:"id"`
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

// CreateParams are the fields the store accepts on creation.
type CreateParams struct {
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Priority          string     `json:"priority"`
	Tags              []string   `json:"tags"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurringInterval string     `json:"recurring_interval,omitempty"`
}

// Store is the query/command surface the handlers consume.
type Store interface {
	GetTask(ctx context.Context, taskID int64, userID string) (Task, error)
	CreateTask(ctx context.Context, userID string, params CreateParams) (Task, error)
}
