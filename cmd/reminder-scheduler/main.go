package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/taskloop/automation/internal/app/schedule"
	"github.com/taskloop/automation/internal/config"
	"github.com/taskloop/automation/internal/events"
	"github.com/taskloop/automation/internal/platform/dbpool"
	"github.com/taskloop/automation/internal/platform/logger"
	"github.com/taskloop/automation/internal/platform/natsutil"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration failed", "error", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel)
	slog.SetDefault(log)

	pool, err := dbpool.New(ctx, cfg.DatabaseURL, cfg.DBMinConns, cfg.DBMaxConns)
	if err != nil {
		log.Error("creating database pool failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := schedule.NewPostgresStore(pool)
	if err := waitForSchema(ctx, store, 30*time.Second, log); err != nil {
		log.Error("postgres never became ready", "error", err)
		os.Exit(1)
	}

	client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, "reminder-scheduler", 20*time.Second)
	if err != nil {
		log.Error("connecting to jetstream failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	publisher := events.NewPublisher(natsutil.JetStreamPublisher{JS: client.JS}.Publish, log)
	poller := schedule.NewPoller(store, publisher, log, cfg.SchedulerPollInterval, cfg.SchedulerBatchSize)

	log.Info("reminder scheduler polling", "interval", cfg.SchedulerPollInterval, "batch", cfg.SchedulerBatchSize)
	poller.Run(ctx)
}

func waitForSchema(ctx context.Context, store *schedule.PostgresStore, timeout time.Duration, log *slog.Logger) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = store.Pool.Ping(attemptCtx)
		if lastErr == nil {
			lastErr = store.EnsureSchema(attemptCtx)
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		log.Info("waiting for postgres readiness", "error", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
