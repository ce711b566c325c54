package taskstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskloop/automation/internal/platform/breaker"
)

type stubStore struct {
	task      Task
	getErr    error
	createErr error
	getCalls  int
}

func (s *stubStore) GetTask(_ context.Context, _ int64, _ string) (Task, error) {
	s.getCalls++
	if s.getErr != nil {
		return Task{}, s.getErr
	}
	return s.task, nil
}

func (s *stubStore) CreateTask(_ context.Context, _ string, _ CreateParams) (Task, error) {
	if s.createErr != nil {
		return Task{}, s.createErr
	}
	return s.task, nil
}

func TestGuard_PassesThroughWhileClosed(t *testing.T) {
	stub := &stubStore{task: Task{ID: 42, UserID: "user-1", Title: "Ship the release"}}
	g := Guard(stub, breaker.New("task-api", 3, time.Minute))

	task, err := g.GetTask(context.Background(), 42, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID != 42 {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestGuard_OpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubStore{getErr: errors.New("task service down")}
	b := breaker.New("task-api", 3, time.Minute)
	g := Guard(stub, b)

	for i := 0; i < 3; i++ {
		if _, err := g.GetTask(context.Background(), 42, "user-1"); err == nil {
			t.Fatal("expected the downstream error to surface")
		}
	}
	if b.State() != breaker.Open {
		t.Fatalf("expected the circuit open, got %v", b.State())
	}

	_, err := g.GetTask(context.Background(), 42, "user-1")
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected ErrOpen while open, got %v", err)
	}
	if stub.getCalls != 3 {
		t.Fatalf("an open circuit must not reach the store, got %d calls", stub.getCalls)
	}
}

func TestGuard_NotFoundIsNotAFailure(t *testing.T) {
	stub := &stubStore{getErr: ErrTaskNotFound}
	b := breaker.New("task-api", 1, time.Minute)
	g := Guard(stub, b)

	if _, err := g.GetTask(context.Background(), 42, "user-1"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound to pass through, got %v", err)
	}
	if b.State() != breaker.Closed {
		t.Fatalf("a not-found answer must not trip the breaker, got %v", b.State())
	}
}

func TestGuard_CreateTaskRecordsFailures(t *testing.T) {
	stub := &stubStore{createErr: errors.New("task service down")}
	b := breaker.New("task-api", 1, time.Minute)
	g := Guard(stub, b)

	if _, err := g.CreateTask(context.Background(), "user-1", CreateParams{Title: "x"}); err == nil {
		t.Fatal("expected the downstream error to surface")
	}
	if b.State() != breaker.Open {
		t.Fatalf("expected the circuit open, got %v", b.State())
	}
}
