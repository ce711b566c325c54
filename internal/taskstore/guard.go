package taskstore

import (
	"context"
	"errors"

	"github.com/taskloop/automation/internal/platform/breaker"
)

// Guarded wraps a Store with a circuit breaker. A not-found answer is a
// valid response from a healthy service and never counts against the
// breaker; while the circuit is open every call fails fast with
// breaker.ErrOpen so the delivery is retried instead of piling onto a
// struggling task service.
type Guarded struct {
	Store   Store
	Breaker *breaker.Breaker
}

func Guard(store Store, b *breaker.Breaker) *Guarded {
	return &Guarded{Store: store, Breaker: b}
}

func (g *Guarded) GetTask(ctx context.Context, taskID int64, userID string) (Task, error) {
	var task Task
	var notFound bool
	err := g.Breaker.Do(func() error {
		var innerErr error
		task, innerErr = g.Store.GetTask(ctx, taskID, userID)
		if errors.Is(innerErr, ErrTaskNotFound) {
			notFound = true
			return nil
		}
		return innerErr
	})
	if err != nil {
		return Task{}, err
	}
	if notFound {
		return Task{}, ErrTaskNotFound
	}
	return task, nil
}

func (g *Guarded) CreateTask(ctx context.Context, userID string, params CreateParams) (Task, error) {
	var task Task
	err := g.Breaker.Do(func() error {
		var innerErr error
		task, innerErr = g.Store.CreateTask(ctx, userID, params)
		return innerErr
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}
