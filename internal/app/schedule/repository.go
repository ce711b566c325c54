// Package schedule is the Postgres-backed scheduling mechanism behind the
// reminder handler's schedule/cancel interface: one row per pending trigger,
// keyed so a new schedule for the same key replaces the old one.
package schedule

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTaskRemindersTableSQL = `
CREATE TABLE IF NOT EXISTS task_reminders (
  reminder_key text PRIMARY KEY,
  remind_at timestamptz NOT NULL,
  payload jsonb NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const createTaskRemindersDueIndexSQL = `
CREATE INDEX IF NOT EXISTS task_reminders_remind_at_idx
ON task_reminders (remind_at)`

const upsertReminderSQL = `
INSERT INTO task_reminders (reminder_key, remind_at, payload, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (reminder_key) DO UPDATE
SET remind_at = EXCLUDED.remind_at,
    payload = EXCLUDED.payload,
    updated_at = now()
`

const deleteReminderSQL = `
DELETE FROM task_reminders WHERE reminder_key = $1
`

// Deleting through a locked subselect lets several scheduler replicas poll
// concurrently without firing the same trigger twice.
const claimDueRemindersSQL = `
DELETE FROM task_reminders
WHERE reminder_key IN (
  SELECT reminder_key FROM task_reminders
  WHERE remind_at <= $1
  ORDER BY remind_at
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING reminder_key, remind_at, payload
`

// DueReminder is one claimed trigger ready to fire.
type DueReminder struct {
	Key      string
	RemindAt time.Time
	Payload  []byte
}

// PostgresStore persists pending triggers. It implements the reminder
// handler's Scheduler interface.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createTaskRemindersTableSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createTaskRemindersDueIndexSQL); err != nil {
		return err
	}
	return nil
}

// Schedule registers or replaces the trigger stored under key.
func (r *PostgresStore) Schedule(ctx context.Context, key string, at time.Time, payload []byte) error {
	_, err := r.Pool.Exec(ctx, upsertReminderSQL, key, at, payload)
	return err
}

// Cancel removes the trigger stored under key; a missing key is a no-op.
func (r *PostgresStore) Cancel(ctx context.Context, key string) error {
	_, err := r.Pool.Exec(ctx, deleteReminderSQL, key)
	return err
}

// ClaimDue atomically removes and returns up to limit triggers due at or
// before now.
func (r *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]DueReminder, error) {
	rows, err := r.Pool.Query(ctx, claimDueRemindersSQL, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []DueReminder
	for rows.Next() {
		var d DueReminder
		if err := rows.Scan(&d.Key, &d.RemindAt, &d.Payload); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}
