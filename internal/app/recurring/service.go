// Package recurring regenerates recurring tasks: a completed recurring task
// spawns an incomplete successor due one interval later.
package recurring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskloop/automation/internal/contracts"
	"github.com/taskloop/automation/internal/ledger"
	"github.com/taskloop/automation/internal/taskstore"
)

// Service consumes task.completed events. It deliberately never consumes
// task.created: the successor starts incomplete, so completing a recurring
// task chains into a new task without ever looping back on itself.
type Service struct {
	Tasks  taskstore.Store
	Ledger ledger.Ledger
	Logger *slog.Logger
}

func NewService(tasks taskstore.Store, led ledger.Ledger, logger *slog.Logger) *Service {
	return &Service{Tasks: tasks, Ledger: led, Logger: logger}
}

// Handle processes one task.completed delivery. Transient store faults leave
// the event unmarked so the redelivery can finish the remaining effects.
func (s *Service) Handle(ctx context.Context, env contracts.Envelope) error {
	var p contracts.TaskCompletedPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidPayload, err)
	}

	log := s.Logger.With("event_id", env.ID, "task_id", p.TaskID, "user_id", p.UserID)

	processed, err := s.Ledger.IsProcessed(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if processed {
		log.Debug("skipping already processed completion event")
		return nil
	}

	// An uncomplete toggle carries completed=false and spawns nothing.
	if !p.Completed || !p.IsRecurring {
		return s.mark(ctx, env)
	}

	task, err := s.Tasks.GetTask(ctx, p.TaskID, p.UserID)
	if errors.Is(err, taskstore.ErrTaskNotFound) {
		// Deleted between completion and processing: a valid terminal
		// state, not a fault.
		log.Info("completed task no longer exists, skipping regeneration")
		return s.mark(ctx, env)
	}
	if err != nil {
		return fmt.Errorf("fetch task %d: %w", p.TaskID, err)
	}

	// Recurrence is re-evaluated against the current record, not the event:
	// the user may have switched the task to one-off since completing it.
	if !task.IsRecurring {
		log.Info("task is no longer recurring, skipping regeneration")
		return s.mark(ctx, env)
	}

	base := env.Time
	if task.DueDate != nil {
		base = *task.DueDate
	}
	nextDue := NextDueDate(base, task.RecurringInterval)

	successor, err := s.Tasks.CreateTask(ctx, p.UserID, taskstore.CreateParams{
		Title:             task.Title,
		Description:       task.Description,
		Priority:          task.Priority,
		Tags:              task.Tags,
		DueDate:           &nextDue,
		IsRecurring:       true,
		RecurringInterval: task.RecurringInterval,
	})
	if err != nil {
		return fmt.Errorf("create successor for task %d: %w", p.TaskID, err)
	}

	log.Info("recurring successor created",
		"successor_id", successor.ID,
		"interval", task.RecurringInterval,
		"next_due", nextDue)
	return s.mark(ctx, env)
}

func (s *Service) mark(ctx context.Context, env contracts.Envelope) error {
	if err := s.Ledger.MarkProcessed(ctx, env.ID, env.Type); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}
