// Package handlers exposes the command surface over HTTP: a JSON API under
// /api, an SSE event stream at /events and Prometheus metrics at /metrics.
package handlers

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/config"
	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/events"
	"github.com/lyallcooper/sieve/internal/fclones"
	"github.com/lyallcooper/sieve/internal/fileops"
	"github.com/lyallcooper/sieve/internal/jobs"
	"github.com/lyallcooper/sieve/internal/services"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// Commands is the part of the orchestrator the API drives
type Commands interface {
	ScanCommand(cmd string, s settings.Settings) (string, error)
	ScanScheduled(t tool.Tool, s settings.Settings, scheduleID int64) (string, error)
	StopScan(id string) int
	ActiveJobs() []string
	MoveFiles(opts fileops.MoveOptions) (string, error)
	DeleteFiles(opts fileops.DeleteOptions) (string, error)
	RenameExt(opts fileops.RenameOptions) (string, error)
	SaveResult(opts services.SaveOptions) (string, error)
	ListenScanProgress() bool
	SetupNumberOfThreads(n int) int
	GetPlatformSettings() settings.PlatformSettings
	ReadImage(path string) (services.ImageInfo, error)
	LastResult(t tool.Tool) (collate.Envelope, bool)
}

var _ Commands = (*services.Orchestrator)(nil)

// Options configures a Handler
type Options struct {
	Commands Commands
	DB       *db.DB
	Config   *config.Config
	Events   *events.Broadcaster
	Metrics  http.Handler              // optional
	Fclones  fclones.ExecutorInterface // optional
	Version  string
	Log      *slog.Logger

	// DisableCSRF turns off token checks; the desktop shell only talks to
	// its own webview.
	DisableCSRF bool
}

// Handler holds all HTTP handlers
type Handler struct {
	cmds        Commands
	db          *db.DB
	cfg         *config.Config
	events      *events.Broadcaster
	metrics     http.Handler
	fclones     fclones.ExecutorInterface
	version     string
	log         *slog.Logger
	csrf        *csrfManager
	disableCSRF bool
	now         func() time.Time
}

// New creates a new Handler
func New(opts Options) (*Handler, error) {
	if opts.Commands == nil || opts.DB == nil || opts.Config == nil {
		return nil, errors.New("handlers: commands, database and config are required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		cmds:        opts.Commands,
		db:          opts.DB,
		cfg:         opts.Config,
		events:      opts.Events,
		metrics:     opts.Metrics,
		fclones:     opts.Fclones,
		version:     opts.Version,
		log:         log.With("component", "http"),
		csrf:        newCSRFManager(),
		disableCSRF: opts.DisableCSRF,
		now:         time.Now,
	}, nil
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	api := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.requireCSRF(fn))
	}

	api("GET /api/csrf", h.CSRFToken)
	api("GET /api/dashboard", h.Dashboard)

	// Commands
	api("POST /api/scan/{tool}", h.Scan)
	api("POST /api/stop_scan", h.StopScan)
	api("GET /api/jobs", h.ActiveJobs)
	api("GET /api/results/{tool}", h.LastResult)
	api("POST /api/move_files", h.MoveFiles)
	api("POST /api/delete_files", h.DeleteFiles)
	api("POST /api/rename_ext", h.RenameExt)
	api("POST /api/save_result", h.SaveResult)
	api("POST /api/listen_scan_progress", h.ListenScanProgress)
	api("POST /api/setup_number_of_threads", h.SetupNumberOfThreads)
	api("GET /api/platform_settings", h.PlatformSettings)
	api("GET /api/image", h.ReadImage)

	// History
	api("GET /api/history", h.History)
	api("GET /api/history/{job}", h.HistoryRun)

	// Scheduled scans
	api("GET /api/schedules", h.Schedules)
	api("POST /api/schedules", h.CreateSchedule)
	api("GET /api/schedules/{id}", h.Schedule)
	api("PUT /api/schedules/{id}", h.UpdateSchedule)
	api("DELETE /api/schedules/{id}", h.DeleteSchedule)
	api("POST /api/schedules/{id}/toggle", h.ToggleSchedule)
	api("POST /api/schedules/{id}/run", h.RunSchedule)

	// Settings
	api("GET /api/settings", h.Settings)
	api("PUT /api/settings", h.UpdateSettings)
	api("GET /api/paths/suggest", h.SuggestPaths)

	if h.events != nil {
		mux.HandleFunc("GET /events", h.EventStream)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	if h.cfg.FrontendDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(h.cfg.FrontendDir)))
	}
}

// apiError is the body of every error response
type apiError struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, apiError{Error: msg})
}

// writeCommandError maps the command sentinels to status codes
func (h *Handler) writeCommandError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrUnknownTool):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrJobActive):
		status = http.StatusConflict
	case errors.Is(err, jobs.ErrDispatcherClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, db.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrNotImage):
		status = http.StatusUnsupportedMediaType
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
	}
	h.writeError(w, status, err.Error())
}

// decode reads a JSON body into v, answering 400 itself on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 8<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// checkPaths answers 403 when any path lies outside the allowed roots
func (h *Handler) checkPaths(w http.ResponseWriter, paths ...string) bool {
	for _, p := range paths {
		if !h.cfg.IsPathAllowed(p) {
			h.writeError(w, http.StatusForbidden, "path not allowed: "+p)
			return false
		}
	}
	return true
}

// jobStarted is the response of every asynchronous command
type jobStarted struct {
	JobID string `json:"jobId"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func relativeTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.Time(*t)
}
