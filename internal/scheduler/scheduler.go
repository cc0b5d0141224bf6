// Package scheduler runs scheduled scans when their cron expression is due.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/jobs"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// Store is the part of the database the scheduler needs
type Store interface {
	GetEnabledScheduledScans() ([]*db.ScheduledScan, error)
	UpdateScheduleLastRun(id int64, lastRun, nextRun time.Time) error
	UpdateScheduleNextRun(id int64, nextRun time.Time) error
}

// Runner starts a scan on behalf of a schedule and returns its job id
type Runner interface {
	ScanScheduled(t tool.Tool, s settings.Settings, scheduleID int64) (string, error)
}

// Parser accepts standard five-field cron expressions
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun returns the first time expr fires after from
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}

// Scheduler polls the store and starts due scans
type Scheduler struct {
	store    Store
	runner   Runner
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new scheduler that checks once a minute
func New(store Store, runner Runner, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:    store,
		runner:   runner,
		log:      log.With("component", "scheduler"),
		interval: time.Minute,
		now:      time.Now,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.stopChan)
}

// Stop stops the scheduler and waits for the poll loop to exit. Scans it
// already started keep running under the orchestrator.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}

// Running reports whether the poll loop is active
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) run(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Check immediately on start
	s.CheckDue()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.CheckDue()
		}
	}
}

// CheckDue starts every enabled scan whose next run time has passed and
// returns how many were started. Scans without a next run time get one.
func (s *Scheduler) CheckDue() int {
	scans, err := s.store.GetEnabledScheduledScans()
	if err != nil {
		s.log.Error("failed to get scheduled scans", "error", err)
		return 0
	}

	now := s.now()
	started := 0
	for _, scan := range scans {
		if scan.NextRunAt == nil {
			s.initNextRun(scan, now)
			continue
		}
		if now.Before(*scan.NextRunAt) {
			continue
		}
		if s.runScan(scan, now) {
			started++
		}
	}
	return started
}

func (s *Scheduler) initNextRun(scan *db.ScheduledScan, now time.Time) {
	next, err := NextRun(scan.CronExpression, now)
	if err != nil {
		s.log.Warn("skipping schedule", "schedule", scan.ID, "error", err)
		return
	}
	if err := s.store.UpdateScheduleNextRun(scan.ID, next); err != nil {
		s.log.Error("failed to set next run", "schedule", scan.ID, "error", err)
	}
}

// runScan advances the schedule before starting the scan so a slow or
// failing scan is never started twice for the same slot.
func (s *Scheduler) runScan(scan *db.ScheduledScan, now time.Time) bool {
	log := s.log.With("schedule", scan.ID, "name", scan.Name)

	next, err := NextRun(scan.CronExpression, now)
	if err != nil {
		log.Warn("skipping schedule", "error", err)
		return false
	}
	if err := s.store.UpdateScheduleLastRun(scan.ID, now, next); err != nil {
		log.Error("failed to update last run", "error", err)
		return false
	}

	t, ok := tool.FromCommand(scan.Tool)
	if !ok {
		log.Warn("unknown tool", "tool", scan.Tool)
		return false
	}
	if len(scan.Settings.IncludedDirectories) == 0 {
		log.Warn("no included directories configured")
		return false
	}

	jobID, err := s.runner.ScanScheduled(t, scan.Settings, scan.ID)
	switch {
	case errors.Is(err, jobs.ErrJobActive):
		log.Info("scan already running, skipped", "tool", t.Command(), "next_run", next)
		return false
	case err != nil:
		log.Error("failed to start scan", "tool", t.Command(), "error", err)
		return false
	}

	log.Info("started scheduled scan", "job", jobID, "tool", t.Command(), "next_run", next)
	return true
}

// UpdateNextRun recomputes the next run time of scan from now and stores it
func (s *Scheduler) UpdateNextRun(scan *db.ScheduledScan) error {
	next, err := NextRun(scan.CronExpression, s.now())
	if err != nil {
		return err
	}
	scan.NextRunAt = &next
	return s.store.UpdateScheduleNextRun(scan.ID, next)
}
