package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faculty_meetings_backend/internal/appointments"
	apptrepo "faculty_meetings_backend/internal/appointments/repository"
	"faculty_meetings_backend/internal/directory"
	"faculty_meetings_backend/internal/events"
	apphttp "faculty_meetings_backend/internal/http"
	"faculty_meetings_backend/internal/http/router"
	"faculty_meetings_backend/internal/notification"
	"faculty_meetings_backend/internal/notification/dispatcher"
	"faculty_meetings_backend/internal/notification/inapp"
	"faculty_meetings_backend/internal/notification/push"
	"faculty_meetings_backend/internal/scheduler"
	"faculty_meetings_backend/migrations"
	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/db"
	"faculty_meetings_backend/platform/logger"
	"faculty_meetings_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		applied, err := db.RunMigrations(ctx, cfg, migrations.FS)
		if err != nil {
			return err
		}
		log.Info("database migrations complete", "applied", len(applied))
		return nil
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

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
	log.Info("database connection established")

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

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	directoryModule := directory.NewModule(rdb, cfg, val, log)
	if err := directoryModule.LoadSeedFile(ctx, cfg.GetFacultySeedFile()); err != nil {
		log.Error("failed to load faculty seed", "error", err, "file", cfg.GetFacultySeedFile())
		panic("failed to load faculty seed: " + err.Error())
	}

	// Notification module subscribes to appointment events and serves the read side
	notificationModule := notification.New(inapp.NewRepository(pool), directoryModule.Tokens, pushTransport(cfg, log), cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	appointmentsModule := appointments.NewModule(apptrepo.New(pool), directoryModule.Faculty, eventBus, cfg, log, val)

	reminderClient, closeReminders := initReminderScheduler(cfg, log)
	if reminderClient != nil {
		appointmentsModule.Service.SetReminderScheduler(reminderClient)
		defer closeReminders()
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			appointmentsModule,
			notificationModule,
			directoryModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Open SSE streams would hold Shutdown until the deadline.
	notificationModule.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	if err := eventBus.Wait(shutdownCtx); err != nil {
		log.Warn("notification handlers still running at shutdown", "error", err)
	}
	log.Info("server stopped")
}

// pushTransport returns nil when no push gateway is configured.
func pushTransport(cfg config.PushConfig, log *logger.Logger) dispatcher.Transport {
	client := push.NewClient(cfg, log)
	if client == nil {
		log.Warn("PUSH_GATEWAY_URL not configured; push delivery disabled")
		return nil
	}
	return client
}

func initReminderScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.ReminderScheduler, func()) {
	reminderClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client; appointment reminders disabled", "error", err)
		return nil, nil
	}

	return reminderClient, func() {
		_ = reminderClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
