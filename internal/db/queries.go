package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// JobRun queries

const jobRunColumns = `id, job_id, kind, tool, schedule_id, status, started_at, completed_at,
	items, failures, message`

// CreateJobRun records the start of a job
func (db *DB) CreateJobRun(jobID, kind, tool string, scheduleID *int64) (*JobRun, error) {
	_, err := db.Exec(`
		INSERT INTO job_runs (job_id, kind, tool, schedule_id, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, kind, tool, scheduleID, JobStatusRunning, time.Now(),
	)
	if err != nil {
		return nil, err
	}
	return db.GetJobRun(jobID)
}

// CompleteJobRun stores the outcome of a job
func (db *DB) CompleteJobRun(jobID string, status JobStatus, items, failures int64, message string) error {
	res, err := db.Exec(`
		UPDATE job_runs SET status = ?, completed_at = ?, items = ?, failures = ?, message = ?
		WHERE job_id = ?`,
		status, time.Now(), items, failures, message, jobID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job run %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// GetJobRun retrieves a job run by its job id
func (db *DB) GetJobRun(jobID string) (*JobRun, error) {
	row := db.QueryRow("SELECT "+jobRunColumns+" FROM job_runs WHERE job_id = ?", jobID)
	return scanJobRun(row)
}

// ListJobRuns returns job runs, newest first
func (db *DB) ListJobRuns(limit, offset int) ([]*JobRun, error) {
	rows, err := db.Query("SELECT "+jobRunColumns+`
		FROM job_runs ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*JobRun
	for rows.Next() {
		r, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLastRunForSchedule returns the most recent run started by a schedule
func (db *DB) GetLastRunForSchedule(scheduleID int64) (*JobRun, error) {
	row := db.QueryRow("SELECT "+jobRunColumns+`
		FROM job_runs WHERE schedule_id = ? ORDER BY started_at DESC, id DESC LIMIT 1`, scheduleID)
	return scanJobRun(row)
}

// MarkInterruptedRuns fails every run still marked running. Called at
// startup, since nothing survives a restart.
func (db *DB) MarkInterruptedRuns() (int64, error) {
	res, err := db.Exec(`
		UPDATE job_runs SET status = ?, completed_at = ?, message = 'interrupted'
		WHERE status = ?`,
		JobStatusFailed, time.Now(), JobStatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetJobStats returns aggregate counts over the history
func (db *DB) GetJobStats() (JobStats, error) {
	var s JobStats
	err := db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN started_at > ? THEN 1 ELSE 0 END), 0)
		FROM job_runs`, time.Now().Add(-24*time.Hour),
	).Scan(&s.Total, &s.Running, &s.Failed, &s.Cancelled, &s.Last24h)
	return s, err
}

func scanJobRun(row rowScanner) (*JobRun, error) {
	var r JobRun
	var scheduleID sql.NullInt64
	var completedAt sql.NullTime

	err := row.Scan(&r.ID, &r.JobID, &r.Kind, &r.Tool, &scheduleID, &r.Status, &r.StartedAt,
		&completedAt, &r.Items, &r.Failures, &r.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if scheduleID.Valid {
		r.ScheduleID = &scheduleID.Int64
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

// ScheduledScan queries

const scheduledScanColumns = `id, name, tool, cron_expression, settings, enabled,
	last_run_at, next_run_at, created_at`

// CreateScheduledScan creates a new scheduled scan
func (db *DB) CreateScheduledScan(s *ScheduledScan) (*ScheduledScan, error) {
	settingsJSON, err := json.Marshal(s.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO scheduled_scans (name, tool, cron_expression, settings, enabled, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.Name, s.Tool, s.CronExpression, string(settingsJSON), s.Enabled, s.NextRunAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetScheduledScan(id)
}

// GetScheduledScan retrieves a scheduled scan by ID
func (db *DB) GetScheduledScan(id int64) (*ScheduledScan, error) {
	row := db.QueryRow("SELECT "+scheduledScanColumns+" FROM scheduled_scans WHERE id = ?", id)
	return scanScheduledScan(row)
}

// ListScheduledScans returns all scheduled scans by name
func (db *DB) ListScheduledScans() ([]*ScheduledScan, error) {
	return db.queryScheduledScans("SELECT " + scheduledScanColumns + " FROM scheduled_scans ORDER BY name")
}

// GetEnabledScheduledScans returns the enabled scans, soonest first
func (db *DB) GetEnabledScheduledScans() ([]*ScheduledScan, error) {
	return db.queryScheduledScans("SELECT " + scheduledScanColumns +
		" FROM scheduled_scans WHERE enabled = 1 ORDER BY next_run_at")
}

func (db *DB) queryScheduledScans(query string, args ...any) ([]*ScheduledScan, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []*ScheduledScan
	for rows.Next() {
		s, err := scanScheduledScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// UpdateScheduledScan saves every editable field of s
func (db *DB) UpdateScheduledScan(s *ScheduledScan) error {
	settingsJSON, err := json.Marshal(s.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	_, err = db.Exec(`
		UPDATE scheduled_scans SET
			name = ?, tool = ?, cron_expression = ?, settings = ?, enabled = ?, next_run_at = ?
		WHERE id = ?`,
		s.Name, s.Tool, s.CronExpression, string(settingsJSON), s.Enabled, s.NextRunAt, s.ID,
	)
	return err
}

// UpdateScheduleLastRun records a run and the next due time
func (db *DB) UpdateScheduleLastRun(id int64, lastRun, nextRun time.Time) error {
	_, err := db.Exec("UPDATE scheduled_scans SET last_run_at = ?, next_run_at = ? WHERE id = ?",
		lastRun, nextRun, id)
	return err
}

// UpdateScheduleNextRun sets only the next due time
func (db *DB) UpdateScheduleNextRun(id int64, nextRun time.Time) error {
	_, err := db.Exec("UPDATE scheduled_scans SET next_run_at = ? WHERE id = ?", nextRun, id)
	return err
}

// SetScheduleEnabled enables or disables a scheduled scan
func (db *DB) SetScheduleEnabled(id int64, enabled bool) error {
	_, err := db.Exec("UPDATE scheduled_scans SET enabled = ? WHERE id = ?", enabled, id)
	return err
}

// DeleteScheduledScan deletes a scheduled scan
func (db *DB) DeleteScheduledScan(id int64) error {
	_, err := db.Exec("DELETE FROM scheduled_scans WHERE id = ?", id)
	return err
}

func scanScheduledScan(row rowScanner) (*ScheduledScan, error) {
	var s ScheduledScan
	var settingsJSON string
	var lastRun, nextRun sql.NullTime

	err := row.Scan(&s.ID, &s.Name, &s.Tool, &s.CronExpression, &settingsJSON, &s.Enabled,
		&lastRun, &nextRun, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(settingsJSON), &s.Settings); err != nil {
		return nil, fmt.Errorf("scheduled scan %d: bad settings: %w", s.ID, err)
	}
	if lastRun.Valid {
		s.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		s.NextRunAt = &nextRun.Time
	}
	return &s, nil
}

// Settings queries

// GetSetting returns a setting value, or "" if unset
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetSetting upserts a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// RetentionDays returns the retention_days setting, falling back to def
// when it is missing or not a positive number
func (db *DB) RetentionDays(def int) int {
	v, err := db.GetSetting("retention_days")
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// CleanupOldData removes finished runs older than the retention period
func (db *DB) CleanupOldData(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res, err := db.Exec("DELETE FROM job_runs WHERE completed_at < ? AND status != 'running'", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
