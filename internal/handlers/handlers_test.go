package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/sieve/internal/config"
	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/events"
	"github.com/lyallcooper/sieve/internal/logging"
	"github.com/lyallcooper/sieve/internal/services"
)

type testEnv struct {
	mux    *http.ServeMux
	orch   *services.Orchestrator
	db     *db.DB
	events *events.Broadcaster
	cfg    *config.Config
}

func newTestEnv(t *testing.T, csrf bool, allowed ...string) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "sieve.db"))
	require.NoError(t, err)

	b := events.NewBroadcaster()
	log := logging.Discard()
	orch := services.New(services.Options{
		Emitter:  b,
		Log:      log,
		CacheDir: t.TempDir(),
		History:  database,
	})

	cfg := &config.Config{
		RetentionDays: 30,
		DBPath:        "sieve.db",
		AllowedPaths:  allowed,
	}
	h, err := New(Options{
		Commands:    orch,
		DB:          database,
		Config:      cfg,
		Events:      b,
		Version:     "test",
		Log:         log,
		DisableCSRF: !csrf,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	t.Cleanup(func() {
		orch.Close()
		b.Close()
		database.Close()
	})
	return &testEnv{mux: mux, orch: orch, db: database, events: b, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"zero", 0, "0s"},
		{"seconds", 42 * time.Second, "42s"},
		{"minutes", 3*time.Minute + 5*time.Second, "3m 5s"},
		{"hours", 2*time.Hour + 15*time.Minute, "2h 15m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.in))
		})
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestCSRF(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/listen_scan_progress", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/csrf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token := decodeBody[map[string]string](t, rec)["token"]
	require.NotEmpty(t, token)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/listen_scan_progress", nil)
	req.AddCookie(cookies[0])
	req.Header.Set(csrfHeader, token)
	ok := httptest.NewRecorder()
	env.mux.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/listen_scan_progress", nil)
	req.AddCookie(cookies[0])
	req.Header.Set(csrfHeader, "forged")
	bad := httptest.NewRecorder()
	env.mux.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusForbidden, bad.Code)
}

func TestScanAndHistory(t *testing.T) {
	env := newTestEnv(t, false)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), nil, 0o644))

	rec := env.do(t, http.MethodPost, "/api/scan/empty_files", map[string]any{
		"includedDirectories": []string{dir},
		"recursiveSearch":     true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decodeBody[jobStarted](t, rec).JobID
	require.NotEmpty(t, jobID)
	env.orch.Wait()

	rec = env.do(t, http.MethodGet, "/api/results/scan_empty_files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "scan_empty_files", result["cmd"])
	assert.Contains(t, result["message"], "Found 1 empty files")

	rec = env.do(t, http.MethodGet, "/api/history/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decodeBody[JobRunView](t, rec)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, "Empty Files", run.Tool)
	assert.EqualValues(t, 1, run.Items)

	rec = env.do(t, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[HistoryData](t, rec)
	assert.Len(t, page.Runs, 1)
	assert.False(t, page.HasMore)

	rec = env.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decodeBody[DashboardData](t, rec)
	assert.Equal(t, 1, dash.Stats.TotalRuns)
	assert.Len(t, dash.RecentRuns, 1)
	assert.Empty(t, dash.ActiveJobs)
}

func TestCommandErrors(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown tool", http.MethodPost, "/api/scan/everything", map[string]any{}, http.StatusNotFound},
		{"bad body", http.MethodPost, "/api/scan/big_files", nil, http.StatusBadRequest},
		{"no results yet", http.MethodGet, "/api/results/big_files", nil, http.StatusNotFound},
		{"results of unknown tool", http.MethodGet, "/api/results/nothing", nil, http.StatusNotFound},
		{"stop unknown job", http.MethodPost, "/api/stop_scan", map[string]string{"jobId": "nope"}, http.StatusNotFound},
		{"stop everything", http.MethodPost, "/api/stop_scan", nil, http.StatusOK},
		{"unknown save tool", http.MethodPost, "/api/save_result", map[string]string{"currentTool": "Nope", "destination": "/tmp"}, http.StatusNotFound},
		{"save without destination", http.MethodPost, "/api/save_result", map[string]string{"currentTool": "Big Files"}, http.StatusBadRequest},
		{"move without destination", http.MethodPost, "/api/move_files", map[string]any{"paths": []string{"/a"}}, http.StatusBadRequest},
		{"image without path", http.MethodGet, "/api/image", nil, http.StatusBadRequest},
		{"missing image", http.MethodGet, "/api/image?path=/definitely/not/here.png", nil, http.StatusNotFound},
		{"missing history entry", http.MethodGet, "/api/history/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestReadImageRejectsText(t *testing.T) {
	env := newTestEnv(t, false)
	path := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	rec := env.do(t, http.MethodGet, "/api/image?path="+path, nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestFileOperations(t *testing.T) {
	env := newTestEnv(t, false)
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	rec := env.do(t, http.MethodPost, "/api/rename_ext", map[string]any{
		"items": []map[string]string{{"path": file, "ext": "md"}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.orch.Wait()
	assert.FileExists(t, filepath.Join(dir, "a.md"))

	rec = env.do(t, http.MethodPost, "/api/delete_files", map[string]any{
		"paths": []string{filepath.Join(dir, "a.md")},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.orch.Wait()
	assert.NoFileExists(t, filepath.Join(dir, "a.md"))
}

func TestAllowedPaths(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()
	env := newTestEnv(t, false, allowed)

	rec := env.do(t, http.MethodPost, "/api/scan/big_files", map[string]any{
		"includedDirectories": []string{outside},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/delete_files", map[string]any{
		"paths": []string{filepath.Join(allowed, "ok"), filepath.Join(outside, "not-ok")},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/move_files", map[string]any{
		"paths":       []string{filepath.Join(allowed, "ok")},
		"destination": outside,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/scan/big_files", map[string]any{
		"includedDirectories":          []string{allowed},
		"biggestFilesSubNumberOfFiles": 5,
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestScanPathsFillEmptySettings(t *testing.T) {
	env := newTestEnv(t, false)
	dir := t.TempDir()
	env.cfg.ScanPaths = []string{dir}

	rec := env.do(t, http.MethodGet, "/api/platform_settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[map[string]any](t, rec)
	assert.Equal(t, []any{dir}, p["includedDirectories"])

	rec = env.do(t, http.MethodPost, "/api/scan/empty_folders", map[string]any{})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestThreadsAndListener(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/setup_number_of_threads", map[string]int{"numberOfThreads": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[map[string]int](t, rec)["threads"])

	rec = env.do(t, http.MethodPost, "/api/setup_number_of_threads", map[string]int{"numberOfThreads": 6})
	assert.Equal(t, 2, decodeBody[map[string]int](t, rec)["threads"])

	rec = env.do(t, http.MethodPost, "/api/listen_scan_progress", nil)
	assert.True(t, decodeBody[map[string]bool](t, rec)["started"])
	rec = env.do(t, http.MethodPost, "/api/listen_scan_progress", nil)
	assert.False(t, decodeBody[map[string]bool](t, rec)["started"])
}

func TestSchedules(t *testing.T) {
	env := newTestEnv(t, false)
	dir := t.TempDir()

	rec := env.do(t, http.MethodPost, "/api/schedules", map[string]any{
		"name":           "nightly temp sweep",
		"tool":           "temporary_files",
		"cronExpression": "0 3 * * *",
		"settings":       map[string]any{"includedDirectories": []string{dir}},
		"enabled":        true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[ScheduleView](t, rec)
	assert.Equal(t, "scan_temporary_files", created.Tool)
	assert.NotEmpty(t, created.NextRunAt)
	assert.Equal(t, 1, created.PathCount)
	path := "/api/schedules/" + strconv.FormatInt(created.ID, 10)

	invalid := []map[string]any{
		{"name": "", "tool": "big_files", "cronExpression": "* * * * *", "settings": map[string]any{"includedDirectories": []string{dir}}},
		{"name": "x", "tool": "nothing", "cronExpression": "* * * * *", "settings": map[string]any{"includedDirectories": []string{dir}}},
		{"name": "x", "tool": "big_files", "cronExpression": "not cron", "settings": map[string]any{"includedDirectories": []string{dir}}},
		{"name": "x", "tool": "big_files", "cronExpression": "* * * * *"},
	}
	for _, body := range invalid {
		rec = env.do(t, http.MethodPost, "/api/schedules", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
	}

	rec = env.do(t, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[map[string][]ScheduleView](t, rec)["schedules"]
	assert.Len(t, list, 1)

	rec = env.do(t, http.MethodPut, path, map[string]any{
		"name":           "renamed",
		"tool":           "scan_temporary_files",
		"cronExpression": "30 4 * * 1",
		"settings":       map[string]any{"includedDirectories": []string{dir}},
		"enabled":        true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "renamed", decodeBody[ScheduleView](t, rec).Name)

	rec = env.do(t, http.MethodPost, path+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	toggled := decodeBody[ScheduleView](t, rec)
	assert.False(t, toggled.Enabled)
	assert.Equal(t, "disabled", toggled.NextRun)

	rec = env.do(t, http.MethodPost, path+"/run", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decodeBody[jobStarted](t, rec).JobID
	env.orch.Wait()

	run, err := env.db.GetJobRun(jobID)
	require.NoError(t, err)
	require.NotNil(t, run.ScheduleID)
	assert.Equal(t, created.ID, *run.ScheduleID)

	rec = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/schedules/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody[SettingsData](t, rec)
	assert.Equal(t, 30, data.RetentionDays)
	assert.Equal(t, "test", data.Version)
	assert.Equal(t, "not found", data.FclonesVersion)

	rec = env.do(t, http.MethodPut, "/api/settings", map[string]int{"retentionDays": 7})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decodeBody[SettingsData](t, rec).RetentionDays)
	assert.Equal(t, 7, env.db.RetentionDays(30))

	rec = env.do(t, http.MethodPut, "/api/settings", map[string]int{"retentionDays": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestPaths(t *testing.T) {
	env := newTestEnv(t, false)
	dir := t.TempDir()
	for _, d := range []string{"alpha", "Albums", "beta", ".hidden"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.txt"), nil, 0o644))

	rec := env.do(t, http.MethodGet, "/api/paths/suggest?prefix="+dir+"/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "alpha"),
		filepath.Join(dir, "Albums"),
		filepath.Join(dir, "beta"),
	}, decodeBody[[]string](t, rec))

	rec = env.do(t, http.MethodGet, "/api/paths/suggest?prefix="+filepath.Join(dir, "al"), nil)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "alpha"),
		filepath.Join(dir, "Albums"),
	}, decodeBody[[]string](t, rec))

	rec = env.do(t, http.MethodGet, "/api/paths/suggest?prefix=relative", nil)
	assert.Empty(t, decodeBody[[]string](t, rec))
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, false)
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events?events=save-result-done")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return env.events.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	env.events.Emit(events.ScanResult, map[string]string{"cmd": "filtered out"})
	env.events.Emit(events.SaveResultDone, services.SaveResultDone{Message: "saved"})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}
	assert.Equal(t, "event: save-result-done", lines[0])
	assert.Equal(t, `data: {"message":"saved"}`, lines[1])
}
