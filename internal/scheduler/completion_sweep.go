package scheduler

import (
	"context"
	"time"

	"faculty_meetings_backend/internal/appointments/repository"
	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/logger"
)

const defaultCompletionSweepInterval = 15 * time.Minute

// CompletionSweep periodically persists COMPLETED for scheduled appointments
// whose end time has passed. Reads already resolve the status on the fly, so
// this only keeps stored rows close to what callers see.
type CompletionSweep struct {
	store    repository.Store
	log      *logger.Logger
	interval time.Duration
	now      func() time.Time
}

func NewCompletionSweep(store repository.Store, cfg config.SweepConfig, log *logger.Logger) *CompletionSweep {
	interval := defaultCompletionSweepInterval
	if cfg != nil && cfg.GetCompletionSweepInterval() > 0 {
		interval = cfg.GetCompletionSweepInterval()
	}

	return &CompletionSweep{
		store:    store,
		log:      log,
		interval: interval,
		now:      time.Now,
	}
}

func (c *CompletionSweep) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	c.sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *CompletionSweep) sweep(ctx context.Context) {
	changed, err := c.store.MarkCompletedBefore(ctx, c.now().UTC())
	if err != nil {
		c.log.Warn("completion sweep failed", "error", err)
		return
	}

	if changed > 0 {
		c.log.Info("completion sweep marked appointments completed", "updated", changed)
	}
}
