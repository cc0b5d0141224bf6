package handlers

import (
	"net/http"

	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// Scan handles POST /api/scan/{tool}. The tool is its command name
// ("scan_big_files") or the short form ("big_files"); the body is the scan
// settings. The result arrives on the event stream.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	cmd := r.PathValue("tool")
	if _, ok := tool.FromCommand(cmd); !ok {
		cmd = "scan_" + cmd
	}

	var s settings.Settings
	if !h.decode(w, r, &s) {
		return
	}
	if len(s.IncludedDirectories) == 0 {
		s.IncludedDirectories = h.cfg.ScanPaths
	}
	if !h.checkPaths(w, s.IncludedDirectories...) {
		return
	}

	id, err := h.cmds.ScanCommand(cmd, s)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, jobStarted{JobID: id})
}

// stopRequest targets one job; an empty id stops every running job
type stopRequest struct {
	JobID string `json:"jobId"`
}

// StopScan handles POST /api/stop_scan
func (h *Handler) StopScan(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	n := h.cmds.StopScan(req.JobID)
	if req.JobID != "" && n == 0 {
		h.writeError(w, http.StatusNotFound, "no running job "+req.JobID)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"stopped": n})
}

// ActiveJobs handles GET /api/jobs
func (h *Handler) ActiveJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]string{"jobs": h.cmds.ActiveJobs()})
}

// LastResult handles GET /api/results/{tool}: the collated result of the
// last finished scan, as it was sent on scan-result.
func (h *Handler) LastResult(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("tool")
	t, ok := tool.FromCommand(name)
	if !ok {
		t, ok = tool.FromCommand("scan_" + name)
	}
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown tool "+name)
		return
	}

	env, ok := h.cmds.LastResult(t)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no results for "+t.DisplayName())
		return
	}
	h.writeJSON(w, http.StatusOK, env)
}

// ListenScanProgress handles POST /api/listen_scan_progress
func (h *Handler) ListenScanProgress(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"started": h.cmds.ListenScanProgress()})
}

type threadsRequest struct {
	NumberOfThreads int `json:"numberOfThreads"`
}

// SetupNumberOfThreads handles POST /api/setup_number_of_threads. Only the
// first call has an effect; the response carries the count in use.
func (h *Handler) SetupNumberOfThreads(w http.ResponseWriter, r *http.Request) {
	var req threadsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"threads": h.cmds.SetupNumberOfThreads(req.NumberOfThreads)})
}

// PlatformSettings handles GET /api/platform_settings. Configured scan
// paths replace the home directory default.
func (h *Handler) PlatformSettings(w http.ResponseWriter, r *http.Request) {
	p := h.cmds.GetPlatformSettings()
	if len(h.cfg.ScanPaths) > 0 {
		p.IncludedDirectories = h.cfg.ScanPaths
	}
	h.writeJSON(w, http.StatusOK, p)
}

// ReadImage handles GET /api/image?path=...
func (h *Handler) ReadImage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if !h.checkPaths(w, path) {
		return
	}

	info, err := h.cmds.ReadImage(path)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}
