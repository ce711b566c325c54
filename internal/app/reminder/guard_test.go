package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskloop/automation/internal/platform/breaker"
)

func TestGuardNotifications_OpensAndFailsFast(t *testing.T) {
	store := &fakeNotificationStore{createErr: errors.New("postgres down")}
	b := breaker.New("notifications", 2, time.Minute)
	g := GuardNotifications(store, b)

	for i := 0; i < 2; i++ {
		if _, err := g.CreateNotification(context.Background(), "user-1", NotificationTypeTaskReminder, "t", "m", nil); err == nil {
			t.Fatal("expected the downstream error to surface")
		}
	}
	if b.State() != breaker.Open {
		t.Fatalf("expected the circuit open, got %v", b.State())
	}

	store.createErr = nil
	_, err := g.CreateNotification(context.Background(), "user-1", NotificationTypeTaskReminder, "t", "m", nil)
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected ErrOpen while open, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("an open circuit must not reach the store")
	}
}

func TestGuardNotifications_PassesThroughWhileClosed(t *testing.T) {
	store := &fakeNotificationStore{}
	g := GuardNotifications(store, breaker.New("notifications", 2, time.Minute))

	n, err := g.CreateNotification(context.Background(), "user-1", NotificationTypeTaskReminder,
		"Reminder: Ship the release", "due soon", map[string]any{"task_id": int64(42)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Title != "Reminder: Ship the release" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one write, got %d", len(store.created))
	}
}
