package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	apptrepo "faculty_meetings_backend/internal/appointments/repository"
	"faculty_meetings_backend/internal/directory"
	"faculty_meetings_backend/internal/events"
	"faculty_meetings_backend/internal/notification"
	"faculty_meetings_backend/internal/notification/dispatcher"
	"faculty_meetings_backend/internal/notification/inapp"
	"faculty_meetings_backend/internal/notification/push"
	"faculty_meetings_backend/internal/scheduler"
	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/db"
	"faculty_meetings_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const drainTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	var rdb *redis.Client
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		c, err := db.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		rdb = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	eventBus := events.NewInMemoryBus(log)

	// Reminder events are dispatched from this process; no HTTP routes are mounted.
	tokens := directory.NewTokenStore(rdb, cfg.GetPushTokenTTL())
	var transport dispatcher.Transport
	if client := push.NewClient(cfg, log); client != nil {
		transport = client
	}
	notificationModule := notification.New(inapp.NewRepository(pool), tokens, transport, cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	store := apptrepo.New(pool)

	sweep := scheduler.NewCompletionSweep(store, cfg, log)
	go sweep.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, store, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := eventBus.Wait(drainCtx); err != nil {
		log.Warn("event handlers still running at shutdown", "error", err)
	}
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
