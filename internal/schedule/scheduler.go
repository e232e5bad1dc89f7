// Package schedule runs a job on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled execution. Its error is logged; it never stops the
// schedule.
type Job func(ctx context.Context) error

type Scheduler struct {
	spec    string
	job     Job
	cron    *cron.Cron
	logger  *zap.Logger
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for spec, a standard 5-field cron
// expression such as "0 3 * * *" (daily at 3 AM). A tick that fires while
// the previous run is still in progress is skipped.
func NewScheduler(spec string, job Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		spec:   spec,
		job:    job,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Start validates the expression and starts the schedule. The scheduler
// stops on its own when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(s.spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.spec, err)
	}

	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("unable to schedule job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", zap.String("schedule", s.spec))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	s.logger.Info("Starting scheduled run")

	if err := s.job(ctx); err != nil {
		s.logger.Error("Scheduled run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}

	s.logger.Info("Scheduled run completed", zap.Duration("elapsed", time.Since(start)))
}

// Stop stops the schedule and waits for a running job to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the time of the next scheduled run, or nil when the
// scheduler is not running.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
