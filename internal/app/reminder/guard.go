package reminder

import (
	"context"

	"github.com/taskloop/automation/internal/platform/breaker"
)

// GuardedNotificationStore wraps a NotificationStore with a circuit breaker.
// While the circuit is open the write fails fast with breaker.ErrOpen, the
// event stays unmarked and the redelivery probes the store again later.
type GuardedNotificationStore struct {
	Store   NotificationStore
	Breaker *breaker.Breaker
}

func GuardNotifications(store NotificationStore, b *breaker.Breaker) *GuardedNotificationStore {
	return &GuardedNotificationStore{Store: store, Breaker: b}
}

func (g *GuardedNotificationStore) CreateNotification(
	ctx context.Context, userID, notifType, title, message string, data map[string]any,
) (Notification, error) {
	var n Notification
	err := g.Breaker.Do(func() error {
		var innerErr error
		n, innerErr = g.Store.CreateNotification(ctx, userID, notifType, title, message, data)
		return innerErr
	})
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}
