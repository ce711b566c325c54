package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/taskloop/automation/internal/contracts"
	"github.com/taskloop/automation/internal/platform/metrics"
)

// Decision is the dispatcher's verdict on one delivery. It is the only
// signal that crosses back to the transport: no handler error detail leaks
// past this boundary.
type Decision int

const (
	// Ack acknowledges the delivery; the event is done.
	Ack Decision = iota
	// Retry asks the transport to redeliver under its backoff policy.
	Retry
	// Drop acknowledges without processing. A malformed or tampered event
	// is not retried, because retrying cannot fix a structural defect.
	Drop
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// ErrDropEvent marks a handler failure as non-retryable; the dispatcher
// acks the delivery instead of requesting redelivery.
var ErrDropEvent = errors.New("event is not retryable")

// Handler processes one decoded event delivery. A nil return acks, an error
// wrapping ErrDropEvent or contracts.ErrInvalidPayload drops, anything else
// is treated as a transient fault and retried.
type Handler interface {
	Handle(ctx context.Context, env contracts.Envelope) error
}

type HandlerFunc func(ctx context.Context, env contracts.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env contracts.Envelope) error {
	return f(ctx, env)
}

// Chain runs handlers in order, stopping at the first error. Used when one
// event type has several side effects with the later ones guarded by the
// idempotency ledger.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, env contracts.Envelope) error {
		for _, h := range handlers {
			if err := h.Handle(ctx, env); err != nil {
				return err
			}
		}
		return nil
	})
}

// Dispatcher routes inbound deliveries to the handler registered for the
// event type. Handler invocations run under a bounded concurrency limit and
// a per-invocation deadline; exceeding the deadline is a transient fault.
type Dispatcher struct {
	Logger  *slog.Logger
	Timeout time.Duration

	handlers map[string]Handler
	sem      chan struct{}
}

func NewDispatcher(logger *slog.Logger, timeout time.Duration, maxConcurrency int) *Dispatcher {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Dispatcher{
		Logger:   logger,
		Timeout:  timeout,
		handlers: map[string]Handler{},
		sem:      make(chan struct{}, maxConcurrency),
	}
}

// Register binds an event type to its single handler.
func (d *Dispatcher) Register(eventType string, h Handler) {
	d.handlers[eventType] = h
}

// Dispatch parses one raw delivery and routes it. State machine:
// Received -> Routed -> {Acked | Retrying | Dropped}; dead-lettering after
// exhausted retries belongs to the transport.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) Decision {
	var env contracts.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.Logger.Warn("discarding malformed event envelope", "error", err)
		metrics.EventsProcessed.WithLabelValues("malformed", Drop.String()).Inc()
		return Drop
	}

	if err := env.Validate(); err != nil {
		d.Logger.Warn("event integrity check failed, discarding",
			"event_id", env.ID,
			"event_type", env.Type,
			"ordering_key", env.OrderingKey,
			"error", err)
		metrics.EventsProcessed.WithLabelValues(env.Type, Drop.String()).Inc()
		return Drop
	}

	h, ok := d.handlers[env.Type]
	if !ok {
		d.Logger.Warn("no handler registered for event type, discarding",
			"event_id", env.ID, "event_type", env.Type)
		metrics.EventsProcessed.WithLabelValues(env.Type, Drop.String()).Inc()
		return Drop
	}

	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	handleCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		handleCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	decision := d.decide(env, h.Handle(handleCtx, env))
	metrics.EventsProcessed.WithLabelValues(env.Type, decision.String()).Inc()
	return decision
}

func (d *Dispatcher) decide(env contracts.Envelope, err error) Decision {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, ErrDropEvent), errors.Is(err, contracts.ErrInvalidPayload):
		d.Logger.Warn("handler rejected event as non-retryable, discarding",
			"event_id", env.ID, "event_type", env.Type, "error", err)
		return Drop
	default:
		d.Logger.Error("handler failed, requesting redelivery",
			"event_id", env.ID, "event_type", env.Type, "error", err)
		return Retry
	}
}

// BackoffDelay returns the redelivery delay after the numDelivered-th
// delivery: 1s, 2s, 4s.
func BackoffDelay(numDelivered uint64) time.Duration {
	if numDelivered < 1 {
		numDelivered = 1
	}
	if numDelivered > 3 {
		numDelivered = 3
	}
	return time.Second << (numDelivered - 1)
}
