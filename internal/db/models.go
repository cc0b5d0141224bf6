package db

import (
	"time"

	"github.com/lyallcooper/sieve/internal/settings"
)

// JobStatus represents the status of a job run
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobRun is one execution of a scan or file operation
type JobRun struct {
	ID          int64
	JobID       string // id handed out by the job hub
	Kind        string // command name, e.g. "scan_big_files" or "delete_files"
	Tool        string // display name for scans, empty otherwise
	ScheduleID  *int64 // set when started by the scheduler
	Status      JobStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Items       int64 // result groups or entries for scans, paths for file operations
	Failures    int64
	Message     string
}

// Duration returns how long the run took, or has taken so far
func (r *JobRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// ScheduledScan is a scan run on a cron schedule
type ScheduledScan struct {
	ID             int64
	Name           string
	Tool           string // command name, e.g. "scan_empty_files"
	CronExpression string
	Settings       settings.Settings
	Enabled        bool
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	CreatedAt      time.Time
}

// JobStats are aggregate counts over the history
type JobStats struct {
	Total     int
	Running   int
	Failed    int
	Cancelled int
	Last24h   int
}
