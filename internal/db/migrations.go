package db

import (
	"fmt"
)

type migration struct {
	version int
	sql     string
}

// migrations are applied in order; each runs once in its own transaction
var migrations = []migration{
	{1, migration001},
	{2, migration002},
}

// Migrate brings the schema up to the latest version
func (db *DB) Migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return v, nil
}

func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("failed to run migration %d: %w", m.version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
	}
	return nil
}

const migration001 = `
-- Every scan and file operation (history)
CREATE TABLE job_runs (
    id INTEGER PRIMARY KEY,
    job_id TEXT UNIQUE NOT NULL,
    kind TEXT NOT NULL,
    tool TEXT NOT NULL DEFAULT '',
    schedule_id INTEGER,
    status TEXT NOT NULL DEFAULT 'running',
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    items INTEGER DEFAULT 0,
    failures INTEGER DEFAULT 0,
    message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_job_runs_status ON job_runs(status);
CREATE INDEX idx_job_runs_started_at ON job_runs(started_at);
CREATE INDEX idx_job_runs_schedule_id ON job_runs(schedule_id);

-- App settings (key-value store)
CREATE TABLE settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Default retention days
INSERT INTO settings (key, value) VALUES ('retention_days', '30');
`

const migration002 = `
-- Scans run on a cron schedule, with the settings they run with
CREATE TABLE scheduled_scans (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    tool TEXT NOT NULL,
    cron_expression TEXT NOT NULL,
    settings TEXT NOT NULL DEFAULT '{}',
    enabled BOOLEAN DEFAULT 1,
    last_run_at DATETIME,
    next_run_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
