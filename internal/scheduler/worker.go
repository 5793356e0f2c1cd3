package scheduler

import (
	"context"
	"fmt"
	"time"

	"faculty_meetings_backend/internal/appointments/domain"
	"faculty_meetings_backend/internal/appointments/repository"
	"faculty_meetings_backend/internal/events"
	"faculty_meetings_backend/platform/apperr"
	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	store  repository.Store
	bus    events.Bus
	log    *logger.Logger
	now    func() time.Time
}

func NewWorker(cfg config.SchedulerConfig, store repository.Store, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		store:  store,
		bus:    bus,
		log:    log,
		now:    time.Now,
	}

	mux.HandleFunc(TaskAppointmentReminder, w.handleAppointmentReminder)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleAppointmentReminder publishes the reminder only while the appointment
// still exists, is still scheduled and still starts at the time the task was
// created for. Anything else is a stale task and is dropped.
func (w *Worker) handleAppointmentReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAppointmentReminderPayload(task)
	if err != nil {
		return fmt.Errorf("parse reminder payload: %v: %w", err, asynq.SkipRetry)
	}

	apptID, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return fmt.Errorf("parse appointment id: %v: %w", err, asynq.SkipRetry)
	}

	appt, err := w.store.Get(ctx, apptID)
	if apperr.Is(err, apperr.KindNotFound) {
		w.log.Debug("reminder dropped, appointment deleted", "appointmentId", apptID)
		return nil
	}
	if err != nil {
		return err
	}

	if !appt.StartTime.Equal(payload.StartTime) {
		w.log.Debug("reminder dropped, appointment rescheduled", "appointmentId", apptID)
		return nil
	}

	now := w.now()
	status := domain.EffectiveStatus(appt.Status, appt.EndTime, now)
	if status != domain.StatusScheduled {
		w.log.Debug("reminder dropped, appointment not scheduled", "appointmentId", apptID, "status", status)
		return nil
	}

	if w.bus == nil {
		return nil
	}

	return w.bus.PublishSync(ctx, events.AppointmentReminderDue{
		BaseEvent: events.NewBaseEventAt(now),
		AppointmentSnapshot: events.AppointmentSnapshot{
			AppointmentID: appt.ID,
			Title:         appt.Title,
			StartTime:     appt.StartTime,
			EndTime:       appt.EndTime,
			CreatedBy:     appt.CreatedBy,
			Status:        string(status),
		},
		Recipients: appt.Participants,
	})
}
