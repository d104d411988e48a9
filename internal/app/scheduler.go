package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// refreshTimeout bounds one dialog cache refresh run.
const refreshTimeout = 2 * time.Minute

// Refresher is the part of the session the scheduler drives.
type Refresher interface {
	RefreshDialogs(ctx context.Context) (int, error)
}

// Scheduler periodically refreshes the dialog/peer cache so that by-ID
// channel resolution rarely needs an inline dialog rescan.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler with the refresh job registered at
// the given interval.
func NewScheduler(logger *slog.Logger, interval time.Duration, session Refresher) (*Scheduler, error) {
	log := logger.With("component", "scheduler")

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			runCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
			defer cancel()

			startTime := time.Now()
			count, err := session.RefreshDialogs(runCtx)
			if err != nil {
				log.Error("Dialog refresh failed", "error", err)
				return
			}
			log.Info("Dialog cache refreshed",
				"channels", count,
				"duration", time.Since(startTime))
		}, context.Background()),
		gocron.WithName("dialog_refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule dialog refresh: %w", err)
	}

	log.Info("Scheduled dialog refresh", "interval", interval)
	return &Scheduler{scheduler: s, logger: log}, nil
}

// Start begins the scheduler's internal ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.scheduler.Start()
	s.running = true
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job to
// complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	return s.scheduler.Shutdown()
}
