package reminder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Notification is one in-app notification row. This core only ever creates
// them; the notification-listing API reads and marks them elsewhere.
type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

// NotificationStore is the narrow persistence surface the handler writes to.
type NotificationStore interface {
	CreateNotification(ctx context.Context, userID, notifType, title, message string, data map[string]any) (Notification, error)
}

const createNotificationsTableSQL = `
CREATE TABLE IF NOT EXISTS notifications (
  id uuid PRIMARY KEY,
  user_id text NOT NULL,
  type text NOT NULL,
  title text NOT NULL,
  message text NOT NULL,
  data jsonb NOT NULL DEFAULT '{}',
  read boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createNotificationsUserIndexSQL = `
CREATE INDEX IF NOT EXISTS notifications_user_id_idx
ON notifications (user_id, created_at DESC)`

const insertNotificationSQL = `
INSERT INTO notifications (id, user_id, type, title, message, data, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// PostgresNotificationStore implements NotificationStore on pgx.
type PostgresNotificationStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresNotificationStore(pool *pgxpool.Pool) *PostgresNotificationStore {
	return &PostgresNotificationStore{Pool: pool}
}

func (r *PostgresNotificationStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createNotificationsTableSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createNotificationsUserIndexSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresNotificationStore) CreateNotification(
	ctx context.Context, userID, notifType, title, message string, data map[string]any,
) (Notification, error) {
	n := Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      notifType,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return Notification{}, err
	}
	if _, err := r.Pool.Exec(ctx, insertNotificationSQL,
		n.ID, n.UserID, n.Type, n.Title, n.Message, payload, n.CreatedAt,
	); err != nil {
		return Notification{}, err
	}
	return n, nil
}
