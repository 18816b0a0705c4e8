// Package scheduler runs the background housekeeping loops: expiring
// pending confirmations on a fixed ticker and vacuuming old terminal
// workflows on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/storefrontlabs/adminflow/internal/store"
)

// Expirer is the interface the scheduler uses to expire stale pending
// confirmations. Satisfied by the orchestrator (avoids import cycle).
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// DefaultVacuumSchedule runs the retention sweep nightly at 03:00.
const DefaultVacuumSchedule = "0 3 * * *"

// DefaultRetention keeps terminal workflows for 30 days.
const DefaultRetention = 30 * 24 * time.Hour

// Config tunes the scheduler.
type Config struct {
	// SweepInterval between expiry passes. Zero means 60s.
	SweepInterval time.Duration
	// VacuumSchedule is a cron expression for the retention sweep. Zero
	// means DefaultVacuumSchedule.
	VacuumSchedule string
	// Retention is how long terminal workflows are kept. Zero means
	// DefaultRetention.
	Retention time.Duration
}

// Scheduler owns the expiry ticker and the vacuum cron loop.
type Scheduler struct {
	store    store.Store
	expirer  Expirer
	schedule cron.Schedule
	config   Config
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewScheduler creates a scheduler. The vacuum schedule is validated here
// so a bad expression fails at startup.
func NewScheduler(s store.Store, expirer Expirer, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}
	if cfg.VacuumSchedule == "" {
		cfg.VacuumSchedule = DefaultVacuumSchedule
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cfg.VacuumSchedule)
	if err != nil {
		return nil, fmt.Errorf("parse vacuum schedule %q: %w", cfg.VacuumSchedule, err)
	}

	return &Scheduler{
		store:    s,
		expirer:  expirer,
		schedule: schedule,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Start launches the background loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started",
		slog.Duration("sweep_interval", s.config.SweepInterval),
		slog.String("vacuum_schedule", s.config.VacuumSchedule))
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	nextVacuum := s.schedule.Next(time.Now())

	// Run an initial sweep immediately.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(ctx)
			if now.After(nextVacuum) {
				s.vacuum(ctx)
				nextVacuum = s.schedule.Next(now)
			}
		}
	}
}

// sweep expires stale pending confirmations.
func (s *Scheduler) sweep(ctx context.Context) {
	expired, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", slog.String("error", err.Error()))
		return
	}
	if expired > 0 {
		s.logger.Info("expired stale confirmations", slog.Int("count", expired))
	}
}

// vacuum removes terminal workflows older than the retention window and
// reclaims the freed space.
func (s *Scheduler) vacuum(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.config.Retention)
	removed, err := s.store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention purge failed", slog.String("error", err.Error()))
		return
	}
	if err := s.store.Vacuum(ctx); err != nil {
		s.logger.Error("vacuum failed", slog.String("error", err.Error()))
	}
	s.logger.Info("purged old workflows",
		slog.Int("removed", removed),
		slog.Time("cutoff", cutoff))
}
