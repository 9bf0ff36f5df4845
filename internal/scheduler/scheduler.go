// Package scheduler runs periodic full rescans on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eargollo/ppfinder/internal/scan"
)

// Starter starts a scan; *scan.Manager implements it.
type Starter interface {
	Start(ctx context.Context, root, triggeredBy string) (*scan.ActiveScan, error)
}

// Scheduler wraps robfig/cron and tracks the next scheduled run.
type Scheduler struct {
	mu       sync.RWMutex
	c        *cron.Cron
	entryID  cron.EntryID
	cronExpr string
	logger   *slog.Logger
}

// New creates a stopped Scheduler. Call Start to activate it.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		c:      cron.New(),
		logger: logger,
	}
}

// SetJob replaces the current cron job with the given expression and callback.
// If the scheduler is already running, the new job takes effect immediately.
func (s *Scheduler) SetJob(expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.c.Remove(s.entryID)
		s.entryID = 0
		s.cronExpr = ""
	}

	id, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.entryID = id
	s.cronExpr = expr
	s.logger.Info("scheduler: job set", "cron", expr)
	return nil
}

// Clear removes the current job, if any.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID != 0 {
		s.c.Remove(s.entryID)
		s.entryID = 0
		s.cronExpr = ""
		s.logger.Info("scheduler: job cleared")
	}
}

// SetRescan schedules a full rescan of the configured songs directory.
// Scans started on ctx are cancelled with it.
func (s *Scheduler) SetRescan(ctx context.Context, expr string, starter Starter) error {
	return s.SetJob(expr, RescanJob(ctx, starter, s.logger))
}

// RescanJob returns a cron callback starting a scheduled scan. A scan
// already in progress is not an error.
func RescanJob(ctx context.Context, starter Starter, logger *slog.Logger) func() {
	return func() {
		active, err := starter.Start(ctx, "", "scheduled")
		switch {
		case errors.Is(err, scan.ErrAlreadyRunning):
			logger.Info("scheduler: scan already running, skipping")
		case err != nil:
			logger.Error("scheduler: start scan", "error", err)
		default:
			logger.Info("scheduler: scan started", "id", active.ID, "root", active.Root)
		}
	}
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for running callbacks.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// NextRunAt returns the next scheduled time, or nil if no job is set.
func (s *Scheduler) NextRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.c.Entry(s.entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// CronExpr returns the current cron expression.
func (s *Scheduler) CronExpr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cronExpr
}
