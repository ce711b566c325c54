// Package breaker is a minimal circuit breaker guarding downstream calls.
// A breaker trips OPEN after a run of consecutive failures, rejects calls
// while open, and probes the downstream again through a HALF_OPEN state once
// the reset timeout has elapsed.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do without invoking the call while the circuit is
// open. Callers treat it as a transient fault: the delivery is retried and
// the probe happens on a later attempt.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

// Breaker tracks consecutive failures against one downstream. All methods
// are safe for concurrent use.
type Breaker struct {
	Name string

	mu               sync.Mutex
	state            State
	failureCount     int
	failureThreshold int
	resetTimeout     time.Duration
	openedAt         time.Time
	now              func() time.Time
}

func New(name string, failureThreshold int, resetTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	return &Breaker{
		Name:             name,
		state:            Closed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// State reports the current state, moving OPEN to HALF_OPEN when the reset
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState must be called with mu held.
func (b *Breaker) currentState() State {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.state = HalfOpen
	}
	return b.state
}

// FailureCount reports the consecutive failures recorded since the last
// success.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// RecordSuccess resets the failure run and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.state = Closed
}

// RecordFailure counts one failure. The circuit opens at the threshold, and
// any failure while half-open reopens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	if b.state == HalfOpen || b.failureCount >= b.failureThreshold {
		b.state = Open
		b.openedAt = b.now()
	}
}

// Do runs fn under the breaker: while open it returns ErrOpen without
// invoking fn, otherwise it invokes fn and records the outcome. fn's error
// is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	state := b.currentState()
	b.mu.Unlock()

	if state == Open {
		return ErrOpen
	}

	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Registry hands out one breaker per downstream name so every caller of the
// same service shares its failure history.
type Registry struct {
	mu               sync.Mutex
	breakers         map[string]*Breaker
	failureThreshold int
	resetTimeout     time.Duration
}

func NewRegistry(failureThreshold int, resetTimeout time.Duration) *Registry {
	return &Registry{
		breakers:         map[string]*Breaker{},
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

// Get returns the breaker registered under name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.failureThreshold, r.resetTimeout)
	r.breakers[name] = b
	return b
}
