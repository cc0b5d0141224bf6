package scheduler

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/jobs"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// fakeRunner records scans started by the scheduler
type fakeRunner struct {
	mu      sync.Mutex
	started []int64
	tools   []tool.Tool
	err     error
	ran     chan struct{}
}

func (r *fakeRunner) ScanScheduled(t tool.Tool, s settings.Settings, scheduleID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ran != nil {
		select {
		case r.ran <- struct{}{}:
		default:
		}
	}
	if r.err != nil {
		return "", r.err
	}
	r.started = append(r.started, scheduleID)
	r.tools = append(r.tools, t)
	return "job", nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createScan(t *testing.T, database *db.DB, name, cmd, expr string, enabled bool, next *time.Time) *db.ScheduledScan {
	t.Helper()
	scan, err := database.CreateScheduledScan(&db.ScheduledScan{
		Name:           name,
		Tool:           cmd,
		CronExpression: expr,
		Settings:       settings.Settings{IncludedDirectories: []string{"/tmp"}},
		Enabled:        enabled,
		NextRunAt:      next,
	})
	if err != nil {
		t.Fatalf("CreateScheduledScan failed: %v", err)
	}
	return scan
}

func TestStartStop(t *testing.T) {
	s := New(testDB(t), &fakeRunner{}, nil)

	if s.Running() {
		t.Error("scheduler should not be running initially")
	}

	s.Start()
	if !s.Running() {
		t.Error("scheduler should be running after Start")
	}

	// Double start should be idempotent
	s.Start()

	s.Stop()
	if s.Running() {
		t.Error("scheduler should not be running after Stop")
	}

	// Double stop should be safe
	s.Stop()
}

func TestStartChecksImmediately(t *testing.T) {
	database := testDB(t)
	past := time.Now().Add(-time.Hour)
	createScan(t, database, "Due", "scan_big_files", "0 * * * *", true, &past)

	runner := &fakeRunner{ran: make(chan struct{}, 1)}
	s := New(database, runner, nil)
	s.Start()
	defer s.Stop()

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("due scan was not started")
	}
}

func TestCheckDueFiltersCorrectly(t *testing.T) {
	database := testDB(t)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	due := createScan(t, database, "Due", "scan_empty_files", "0 * * * *", true, &past)
	createScan(t, database, "Disabled", "scan_empty_files", "0 * * * *", false, &past)
	createScan(t, database, "Future", "scan_empty_files", "0 * * * *", true, &future)
	unset := createScan(t, database, "Unset", "scan_empty_files", "0 * * * *", true, nil)

	runner := &fakeRunner{}
	s := New(database, runner, nil)

	if n := s.CheckDue(); n != 1 {
		t.Fatalf("started %d scans, want 1", n)
	}
	if runner.started[0] != due.ID {
		t.Errorf("started schedule %d, want %d", runner.started[0], due.ID)
	}
	if runner.tools[0] != tool.EmptyFiles {
		t.Errorf("tool = %v, want EmptyFiles", runner.tools[0])
	}

	got, _ := database.GetScheduledScan(due.ID)
	if got.LastRunAt == nil {
		t.Error("LastRunAt should be set after a run")
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(time.Now()) {
		t.Errorf("NextRunAt should move into the future, got %v", got.NextRunAt)
	}

	got, _ = database.GetScheduledScan(unset.ID)
	if got.NextRunAt == nil {
		t.Error("schedules without a next run should get one")
	}
	if got.LastRunAt != nil {
		t.Error("initializing the next run should not count as a run")
	}

	// Nothing is due any more
	if n := s.CheckDue(); n != 0 {
		t.Errorf("second check started %d scans, want 0", n)
	}
}

func TestCheckDueAdvancesWhenJobActive(t *testing.T) {
	database := testDB(t)
	past := time.Now().Add(-time.Hour)
	scan := createScan(t, database, "Busy", "scan_big_files", "*/5 * * * *", true, &past)

	s := New(database, &fakeRunner{err: jobs.ErrJobActive}, nil)
	if n := s.CheckDue(); n != 0 {
		t.Errorf("started %d scans, want 0", n)
	}

	got, _ := database.GetScheduledScan(scan.ID)
	if got.NextRunAt == nil || !got.NextRunAt.After(time.Now()) {
		t.Errorf("skipped slot should still advance, got %v", got.NextRunAt)
	}
}

func TestCheckDueSkipsBadSchedules(t *testing.T) {
	database := testDB(t)
	past := time.Now().Add(-time.Hour)
	createScan(t, database, "Bad cron", "scan_big_files", "invalid", true, &past)
	createScan(t, database, "Bad tool", "scan_everything", "0 * * * *", true, &past)

	runner := &fakeRunner{}
	s := New(database, runner, nil)
	if n := s.CheckDue(); n != 0 {
		t.Errorf("started %d scans, want 0", n)
	}
	if runner.count() != 0 {
		t.Error("runner should not be called")
	}
}

func TestUpdateNextRun(t *testing.T) {
	database := testDB(t)
	scan := createScan(t, database, "Hourly", "scan_temporary", "0 * * * *", true, nil)
	s := New(database, &fakeRunner{}, nil)

	if err := s.UpdateNextRun(scan); err != nil {
		t.Fatalf("UpdateNextRun failed: %v", err)
	}
	if scan.NextRunAt == nil {
		t.Fatal("NextRunAt should be set")
	}

	now := time.Now()
	if scan.NextRunAt.Before(now) {
		t.Error("NextRunAt should be in the future")
	}
	if scan.NextRunAt.After(now.Add(time.Hour)) {
		t.Error("NextRunAt should be within the next hour")
	}
}

func TestCronExpressionParsing(t *testing.T) {
	from := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		cron    string
		want    time.Time
		wantErr bool
	}{
		{"every minute", "* * * * *", from.Add(time.Minute), false},
		{"every hour", "0 * * * *", from.Add(time.Hour), false},
		{"daily at midnight", "0 0 * * *", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), false},
		{"monthly first day", "0 0 1 * *", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), false},
		{"invalid", "invalid", time.Time{}, true},
		{"too few fields", "* * *", time.Time{}, true},
		{"too many fields", "* * * * * *", time.Time{}, true}, // seconds are not supported
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(tt.cron, from)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NextRun() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("NextRun() = %v, want %v", got, tt.want)
			}
		})
	}
}
