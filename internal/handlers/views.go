package handlers

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/settings"
)

// View models for API responses.
// These are separate from db models to keep presentation out of storage.

// JobRunView is one history entry
type JobRunView struct {
	JobID       string `json:"jobId"`
	Kind        string `json:"kind"`
	Tool        string `json:"tool,omitempty"`
	ScheduleID  *int64 `json:"scheduleId,omitempty"`
	Status      string `json:"status"`
	StartedAt   string `json:"startedAt"`
	Started     string `json:"started"`
	CompletedAt string `json:"completedAt,omitempty"`
	Duration    string `json:"duration"`
	Items       int64  `json:"items"`
	Failures    int64  `json:"failures"`
	Message     string `json:"message,omitempty"`
}

func toJobRunView(run *db.JobRun) *JobRunView {
	view := &JobRunView{
		JobID:       run.JobID,
		Kind:        run.Kind,
		Tool:        run.Tool,
		ScheduleID:  run.ScheduleID,
		Status:      string(run.Status),
		StartedAt:   formatTime(&run.StartedAt),
		Started:     humanize.Time(run.StartedAt),
		CompletedAt: formatTime(run.CompletedAt),
		Items:       run.Items,
		Failures:    run.Failures,
		Message:     run.Message,
	}
	switch {
	case run.CompletedAt != nil:
		view.Duration = formatDuration(run.Duration())
	case run.Status == db.JobStatusRunning:
		view.Duration = "Running..."
	default:
		view.Duration = "-"
	}
	return view
}

// ScheduleView is a scheduled scan
type ScheduleView struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Tool           string            `json:"tool"`
	CronExpression string            `json:"cronExpression"`
	Settings       settings.Settings `json:"settings"`
	Enabled        bool              `json:"enabled"`
	LastRunAt      string            `json:"lastRunAt,omitempty"`
	LastRun        string            `json:"lastRun"`
	NextRunAt      string            `json:"nextRunAt,omitempty"`
	NextRun        string            `json:"nextRun"`
	PathCount      int               `json:"pathCount"`
}

func toScheduleView(s *db.ScheduledScan) *ScheduleView {
	view := &ScheduleView{
		ID:             s.ID,
		Name:           s.Name,
		Tool:           s.Tool,
		CronExpression: s.CronExpression,
		Settings:       s.Settings,
		Enabled:        s.Enabled,
		LastRunAt:      formatTime(s.LastRunAt),
		LastRun:        relativeTime(s.LastRunAt),
		NextRunAt:      formatTime(s.NextRunAt),
		NextRun:        relativeTime(s.NextRunAt),
		PathCount:      len(s.Settings.IncludedDirectories),
	}
	if !s.Enabled {
		view.NextRun = "disabled"
	}
	return view
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return strconv.Itoa(m) + "m " + strconv.Itoa(s) + "s"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m"
}
