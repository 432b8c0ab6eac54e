package scheduler

import (
	"context"
	"log/slog"
	"time"

	"campaign_scheduler/internal/domain"
)

// Ticker is one dispatcher pass: claim due drafts and hand them to the
// post workers.
type Ticker interface {
	Tick(ctx context.Context) (*domain.TickStats, error)
}

// Scheduler drives the dispatcher on a fixed interval. It is the only
// periodic actor in the process; the dispatcher itself is stateless
// between ticks.
type Scheduler struct {
	dispatcher Ticker
	interval   time.Duration
	logger     *slog.Logger
}

func NewScheduler(dispatcher Ticker, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runTick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	// A tick must never outlive the interval by much, or claims pile up
	// behind a slow account.
	tickCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := s.dispatcher.Tick(tickCtx); err != nil {
		s.logger.Error("dispatcher tick failed", "error", err)
	}
}
