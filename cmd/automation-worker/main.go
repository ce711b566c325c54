package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskloop/automation/internal/app/recurring"
	"github.com/taskloop/automation/internal/app/reminder"
	"github.com/taskloop/automation/internal/app/schedule"
	"github.com/taskloop/automation/internal/config"
	"github.com/taskloop/automation/internal/contracts"
	"github.com/taskloop/automation/internal/events"
	"github.com/taskloop/automation/internal/ledger"
	"github.com/taskloop/automation/internal/platform/breaker"
	"github.com/taskloop/automation/internal/platform/dbpool"
	"github.com/taskloop/automation/internal/platform/logger"
	"github.com/taskloop/automation/internal/platform/natsutil"
	"github.com/taskloop/automation/internal/taskstore"
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

	led := ledger.NewPostgresLedger(pool)
	notifications := reminder.NewPostgresNotificationStore(pool)
	scheduler := schedule.NewPostgresStore(pool)
	if err := waitForPostgres(ctx, pool, 30*time.Second, log,
		led.EnsureSchema, notifications.EnsureSchema, scheduler.EnsureSchema); err != nil {
		log.Error("postgres never became ready", "error", err)
		os.Exit(1)
	}

	client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, "automation-worker", 20*time.Second)
	if err != nil {
		log.Error("connecting to jetstream failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	publisher := events.NewPublisher(natsutil.JetStreamPublisher{JS: client.JS}.Publish, log)

	// One breaker per downstream, shared by every handler touching it.
	breakers := breaker.NewRegistry(cfg.BreakerFailureThreshold, cfg.BreakerResetTimeout)
	tasks := taskstore.Guard(taskstore.NewClient(cfg.TaskAPIBaseURL), breakers.Get("task-api"))
	guardedNotifications := reminder.GuardNotifications(notifications, breakers.Get("notifications"))

	recurringSvc := recurring.NewService(tasks, led, log)
	reminderSvc := reminder.NewService(led, scheduler, guardedNotifications, tasks, publisher, log)

	dispatcher := events.NewDispatcher(log, cfg.HandlerTimeout, cfg.MaxConcurrency)
	dispatcher.Register(contracts.TypeTaskCreated, events.HandlerFunc(reminderSvc.HandleTaskCreated))
	dispatcher.Register(contracts.TypeTaskUpdated, events.HandlerFunc(reminderSvc.HandleTaskUpdated))
	// Completion fans out to both workflows: the reminder cancellation is an
	// idempotent keyed delete, the regeneration is ledger-gated and owns the
	// event's idempotency record.
	dispatcher.Register(contracts.TypeTaskCompleted, events.Chain(
		events.HandlerFunc(reminderSvc.HandleTaskCompleted),
		events.HandlerFunc(recurringSvc.Handle),
	))
	dispatcher.Register(contracts.TypeTaskDeleted, events.HandlerFunc(reminderSvc.HandleTaskDeleted))
	dispatcher.Register(contracts.TypeReminderScheduled, events.HandlerFunc(reminderSvc.HandleReminderScheduled))
	dispatcher.Register(contracts.TypeReminderTriggered, events.HandlerFunc(reminderSvc.HandleReminderTriggered))

	consumer := &events.Consumer{
		Conn:       client.Conn,
		JS:         client.JS,
		Dispatcher: dispatcher,
		Logger:     log,
		Queue:      cfg.QueueGroup,
	}
	for _, topic := range []string{contracts.TopicTasks, contracts.TopicReminders} {
		sub, err := consumer.Subscribe(ctx, topic)
		if err != nil {
			log.Error("subscribing failed", "topic", topic, "error", err)
			os.Exit(1)
		}
		log.Info("consuming topic", "topic", topic, "subject", sub.Subject)
	}
	if _, err := consumer.WatchDeadLetters(); err != nil {
		log.Error("subscribing to dead-letter advisories failed", "error", err)
		os.Exit(1)
	}

	go led.Sweep(ctx, cfg.LedgerSweepInterval, cfg.LedgerRetention, log)

	httpHandler := events.NewHTTPHandler(dispatcher, []events.Subscription{
		events.NewSubscription(contracts.TopicTasks),
		events.NewSubscription(contracts.TopicReminders),
	})
	log.Info("automation worker listening", "addr", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, httpHandler.Router()); err != nil {
		log.Error("http server stopped", "error", err)
		os.Exit(1)
	}
}

func waitForPostgres(
	ctx context.Context,
	pool *pgxpool.Pool,
	timeout time.Duration,
	log *slog.Logger,
	ensure ...func(context.Context) error,
) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		for _, fn := range ensure {
			if lastErr != nil {
				break
			}
			lastErr = fn(attemptCtx)
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
