package breaker

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int, resetTimeout time.Duration) (*Breaker, *time.Time) {
	b := New("test", threshold, resetTimeout)
	now := time.Date(2025, 12, 20, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	if b.State() != Closed {
		t.Fatalf("expected closed, got %v", b.State())
	}
	if b.FailureCount() != 0 {
		t.Fatalf("expected zero failures, got %d", b.FailureCount())
	}
}

func TestBreaker_StaysClosedUnderThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != Closed {
		t.Fatalf("expected closed below threshold, got %v", b.State())
	}
	if b.FailureCount() != 2 {
		t.Fatalf("expected 2 failures, got %d", b.FailureCount())
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.State() != Open {
		t.Fatalf("expected open at threshold, got %v", b.State())
	}
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if b.FailureCount() != 0 {
		t.Fatalf("expected reset failure count, got %d", b.FailureCount())
	}
	if b.State() != Closed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected open, got %v", b.State())
	}

	*now = now.Add(2 * time.Minute)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %v", b.State())
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}

	b.RecordSuccess()
	if b.State() != Closed || b.FailureCount() != 0 {
		t.Fatalf("expected closed with reset count, got %v/%d", b.State(), b.FailureCount())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	*now = now.Add(2 * time.Minute)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}

	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("a half-open probe failure must reopen, got %v", b.State())
	}
}

func TestDo_InvokesWhileClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	calls := 0
	if err := b.Do(func() error { calls++; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one invocation, got %d", calls)
	}
}

func TestDo_BlocksWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	b.RecordFailure()

	calls := 0
	err := b.Do(func() error { calls++; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatal("an open circuit must not invoke the call")
	}
}

func TestDo_RecordsOutcome(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	boom := errors.New("downstream down")

	if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected the call's error back, got %v", err)
	}
	if b.FailureCount() != 1 {
		t.Fatalf("expected one recorded failure, got %d", b.FailureCount())
	}

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.FailureCount() != 0 {
		t.Fatalf("expected success to reset the run, got %d", b.FailureCount())
	}
}

func TestRegistry_SharesBreakersByName(t *testing.T) {
	r := NewRegistry(3, time.Minute)
	a1 := r.Get("task-api")
	a2 := r.Get("task-api")
	b := r.Get("notifications")

	if a1 != a2 {
		t.Fatal("the same name must return the same breaker")
	}
	if a1 == b {
		t.Fatal("different names must not share a breaker")
	}
}
