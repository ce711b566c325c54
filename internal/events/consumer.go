package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/taskloop/automation/internal/messaging"
	"github.com/taskloop/automation/internal/platform/metrics"
)

// Consumer binds the dispatcher to JetStream queue subscriptions and maps
// dispatcher decisions onto the ack protocol: Ack -> Ack, Retry ->
// NakWithDelay under the 1s/2s/4s schedule, Drop -> Term.
type Consumer struct {
	Conn       *nats.Conn
	JS         nats.JetStreamContext
	Dispatcher *Dispatcher
	Logger     *slog.Logger
	Queue      string
}

// Subscribe starts a durable queue consumer for one topic.
func (c *Consumer) Subscribe(ctx context.Context, topic string) (*nats.Subscription, error) {
	return c.JS.QueueSubscribe(messaging.TopicWildcard(topic), c.Queue, func(msg *nats.Msg) {
		switch c.Dispatcher.Dispatch(ctx, msg.Data) {
		case Ack:
			_ = msg.Ack()
		case Drop:
			_ = msg.Term()
		case Retry:
			var numDelivered uint64 = 1
			if meta, err := msg.Metadata(); err == nil {
				numDelivered = meta.NumDelivered
			}
			_ = msg.NakWithDelay(BackoffDelay(numDelivered))
		}
	}, nats.ManualAck(), nats.MaxDeliver(messaging.MaxDeliver))
}

// maxDeliveriesAdvisory is the JetStream advisory body published when a
// message exhausts its delivery budget.
type maxDeliveriesAdvisory struct {
	Type       string `json:"type"`
	Stream     string `json:"stream"`
	Consumer   string `json:"consumer"`
	StreamSeq  uint64 `json:"stream_seq"`
	Deliveries uint64 `json:"deliveries"`
}

// WatchDeadLetters subscribes to the max-deliveries advisories and emits the
// alert-only log record for each dead-lettered event. There is no automated
// recovery: an operator inspects the stream sequence and decides whether to
// replay manually.
func (c *Consumer) WatchDeadLetters() (*nats.Subscription, error) {
	return c.Conn.Subscribe(messaging.MaxDeliveriesAdvisory, func(msg *nats.Msg) {
		var adv maxDeliveriesAdvisory
		if err := json.Unmarshal(msg.Data, &adv); err != nil {
			c.Logger.Warn("unparseable max-deliveries advisory", "error", err)
			return
		}
		metrics.EventsDeadLettered.WithLabelValues(adv.Stream).Inc()
		c.Logger.Error("DLQ ALERT: event exhausted redelivery budget, manual review required",
			"stream", adv.Stream,
			"consumer", adv.Consumer,
			"stream_seq", adv.StreamSeq,
			"deliveries", adv.Deliveries)
	})
}
