// Package ledger tracks which event ids have already produced side effects,
// so redelivered or duplicated events are safe to reprocess.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger is the idempotency contract handlers rely on. A handler checks
// before any side effect and marks only after every side effect committed;
// a partially failed event stays unmarked so a retry can finish the work.
type Ledger interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
}

const createProcessedEventsTableSQL = `
CREATE TABLE IF NOT EXISTS processed_events (
  event_id text PRIMARY KEY,
  event_type text NOT NULL,
  processed_at timestamptz NOT NULL DEFAULT now()
)`

const createProcessedEventsIndexSQL = `
CREATE INDEX IF NOT EXISTS processed_events_processed_at_idx
ON processed_events (processed_at)`

// The conditional insert is the atomic primitive: two workers racing on the
// same redelivered event cannot both win the insert.
const insertProcessedEventSQL = `
INSERT INTO processed_events (event_id, event_type)
VALUES ($1, $2)
ON CONFLICT (event_id) DO NOTHING
`

const existsProcessedEventSQL = `
SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)
`

const deleteExpiredProcessedSQL = `
DELETE FROM processed_events WHERE processed_at < $1
`

// PostgresLedger persists idempotency records in the processed_events table.
type PostgresLedger struct {
	Pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{Pool: pool}
}

func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.Pool.Exec(ctx, createProcessedEventsTableSQL); err != nil {
		return err
	}
	if _, err := l.Pool.Exec(ctx, createProcessedEventsIndexSQL); err != nil {
		return err
	}
	return nil
}

func (l *PostgresLedger) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var processed bool
	if err := l.Pool.QueryRow(ctx, existsProcessedEventSQL, eventID).Scan(&processed); err != nil {
		return false, err
	}
	return processed, nil
}

func (l *PostgresLedger) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := l.Pool.Exec(ctx, insertProcessedEventSQL, eventID, eventType)
	return err
}

// DeleteOlderThan garbage-collects records past the retention window.
// Retention must stay at or above the transport redelivery window; deletion
// is maintenance, not correctness.
func (l *PostgresLedger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := l.Pool.Exec(ctx, deleteExpiredProcessedSQL, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Sweep runs the retention GC on a ticker until ctx is cancelled.
func (l *PostgresLedger) Sweep(ctx context.Context, interval, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := l.DeleteOlderThan(ctx, retention)
			if err != nil {
				logger.Error("ledger retention sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("ledger retention sweep", "deleted", deleted, "retention", retention)
			}
		}
	}
}
