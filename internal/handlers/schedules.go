package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lyallcooper/sieve/internal/config"
	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/scheduler"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// scheduleRequest is the body of create and update
type scheduleRequest struct {
	Name           string            `json:"name"`
	Tool           string            `json:"tool"`
	CronExpression string            `json:"cronExpression"`
	Settings       settings.Settings `json:"settings"`
	Enabled        bool              `json:"enabled"`
	RunAfterSave   bool              `json:"runAfterSave"`
}

// Schedules handles GET /api/schedules
func (h *Handler) Schedules(w http.ResponseWriter, r *http.Request) {
	scans, err := h.db.ListScheduledScans()
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	views := make([]*ScheduleView, 0, len(scans))
	for _, s := range scans {
		views = append(views, toScheduleView(s))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"schedules": views})
}

// Schedule handles GET /api/schedules/{id}
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	scan, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toScheduleView(scan))
}

// CreateSchedule handles POST /api/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	scan, req, ok := h.parseSchedule(w, r)
	if !ok {
		return
	}

	created, err := h.db.CreateScheduledScan(scan)
	if err != nil {
		h.writeCommandError(w, fmt.Errorf("failed to create scheduled scan: %w", err))
		return
	}
	h.log.Info("scheduled scan created", "id", created.ID, "name", created.Name, "cron", created.CronExpression)

	if req.RunAfterSave {
		h.runSchedule(w, created)
		return
	}
	h.writeJSON(w, http.StatusCreated, toScheduleView(created))
}

// UpdateSchedule handles PUT /api/schedules/{id}
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}
	scan, req, ok := h.parseSchedule(w, r)
	if !ok {
		return
	}
	scan.ID = existing.ID

	if err := h.db.UpdateScheduledScan(scan); err != nil {
		h.writeCommandError(w, fmt.Errorf("failed to update scheduled scan: %w", err))
		return
	}
	updated, err := h.db.GetScheduledScan(scan.ID)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	if req.RunAfterSave {
		h.runSchedule(w, updated)
		return
	}
	h.writeJSON(w, http.StatusOK, toScheduleView(updated))
}

// DeleteSchedule handles DELETE /api/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	scan, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}
	if err := h.db.DeleteScheduledScan(scan.ID); err != nil {
		h.writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleSchedule handles POST /api/schedules/{id}/toggle. Enabling
// recomputes the next run so a long-disabled schedule does not fire at once.
func (h *Handler) ToggleSchedule(w http.ResponseWriter, r *http.Request) {
	scan, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}

	scan.Enabled = !scan.Enabled
	if err := h.db.SetScheduleEnabled(scan.ID, scan.Enabled); err != nil {
		h.writeCommandError(w, err)
		return
	}
	if scan.Enabled {
		next, err := scheduler.NextRun(scan.CronExpression, h.now())
		if err == nil {
			err = h.db.UpdateScheduleNextRun(scan.ID, next)
		}
		if err != nil {
			h.writeCommandError(w, err)
			return
		}
		scan.NextRunAt = &next
	}
	h.writeJSON(w, http.StatusOK, toScheduleView(scan))
}

// RunSchedule handles POST /api/schedules/{id}/run
func (h *Handler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	scan, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}
	h.runSchedule(w, scan)
}

func (h *Handler) runSchedule(w http.ResponseWriter, scan *db.ScheduledScan) {
	t, ok := tool.FromCommand(scan.Tool)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "scheduled scan has unknown tool "+scan.Tool)
		return
	}
	id, err := h.cmds.ScanScheduled(t, scan.Settings, scan.ID)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, jobStarted{JobID: id})
}

func (h *Handler) loadSchedule(w http.ResponseWriter, r *http.Request) (*db.ScheduledScan, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "invalid scheduled scan id")
		return nil, false
	}
	scan, err := h.db.GetScheduledScan(id)
	if err != nil {
		h.writeCommandError(w, err)
		return nil, false
	}
	return scan, true
}

// parseSchedule decodes and validates a schedule body. It answers the
// request itself when the body is invalid.
func (h *Handler) parseSchedule(w http.ResponseWriter, r *http.Request) (*db.ScheduledScan, scheduleRequest, bool) {
	var req scheduleRequest
	if !h.decode(w, r, &req) {
		return nil, req, false
	}

	fail := func(msg string) (*db.ScheduledScan, scheduleRequest, bool) {
		h.writeError(w, http.StatusBadRequest, msg)
		return nil, req, false
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fail("name is required")
	}

	t, ok := tool.FromCommand(req.Tool)
	if !ok {
		t, ok = tool.FromCommand("scan_" + req.Tool)
	}
	if !ok {
		return fail("unknown tool " + req.Tool)
	}

	var dirs []string
	for _, p := range req.Settings.IncludedDirectories {
		if p = strings.TrimSpace(p); p != "" {
			dirs = append(dirs, config.ExpandPath(p))
		}
	}
	if len(dirs) == 0 {
		dirs = h.cfg.ScanPaths
	}
	if len(dirs) == 0 {
		return fail("at least one path is required")
	}
	for _, p := range dirs {
		if !h.cfg.IsPathAllowed(p) {
			h.writeError(w, http.StatusForbidden, "path not allowed: "+p)
			return nil, req, false
		}
	}
	req.Settings.IncludedDirectories = dirs

	cronExpr := strings.TrimSpace(req.CronExpression)
	next, err := scheduler.NextRun(cronExpr, h.now())
	if err != nil {
		return fail("invalid cron expression: " + err.Error())
	}

	return &db.ScheduledScan{
		Name:           req.Name,
		Tool:           t.Command(),
		CronExpression: cronExpr,
		Settings:       req.Settings,
		Enabled:        req.Enabled,
		NextRunAt:      &next,
	}, req, true
}
