package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const maxPathSuggestions = 15

// SettingsData describes the server and its stored settings
type SettingsData struct {
	RetentionDays  int      `json:"retentionDays"`
	Version        string   `json:"version"`
	FclonesVersion string   `json:"fclonesVersion"`
	DBPath         string   `json:"dbPath"`
	ConfigFile     string   `json:"configFile,omitempty"`
	CacheDir       string   `json:"cacheDir"`
	ScanPaths      []string `json:"scanPaths"`
	AllowedPaths   []string `json:"allowedPaths"`
}

type settingsRequest struct {
	RetentionDays int `json:"retentionDays"`
}

// Settings handles GET /api/settings
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	fclonesVersion := "not found"
	if h.fclones != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if version, err := h.fclones.Version(ctx); err == nil {
			fclonesVersion = version
		}
	}

	h.writeJSON(w, http.StatusOK, SettingsData{
		RetentionDays:  h.db.RetentionDays(h.cfg.RetentionDays),
		Version:        h.version,
		FclonesVersion: fclonesVersion,
		DBPath:         h.cfg.DBPath,
		ConfigFile:     h.cfg.ConfigFile,
		CacheDir:       h.cfg.CacheDir,
		ScanPaths:      nonNil(h.cfg.ScanPaths),
		AllowedPaths:   nonNil(h.cfg.AllowedPaths),
	})
}

// UpdateSettings handles PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RetentionDays < 1 || req.RetentionDays > 365 {
		h.writeError(w, http.StatusBadRequest, "retention days must be between 1 and 365")
		return
	}
	if err := h.db.SetSetting("retention_days", strconv.Itoa(req.RetentionDays)); err != nil {
		h.writeCommandError(w, err)
		return
	}
	h.log.Info("retention updated", "days", req.RetentionDays)
	h.Settings(w, r)
}

// SuggestPaths handles GET /api/paths/suggest?prefix=...
func (h *Handler) SuggestPaths(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("prefix")
	if raw == "" || !filepath.IsAbs(raw) {
		h.writeJSON(w, http.StatusOK, []string{})
		return
	}
	prefix := filepath.Clean(raw)

	// A trailing separator lists that directory; otherwise the last element
	// is a partial name matched in its parent.
	dir, partial := prefix, ""
	if !strings.HasSuffix(raw, "/") && !strings.HasSuffix(raw, string(filepath.Separator)) {
		dir, partial = filepath.Dir(prefix), strings.ToLower(filepath.Base(prefix))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		h.writeJSON(w, http.StatusOK, []string{})
		return
	}

	suggestions := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if partial != "" && !strings.HasPrefix(strings.ToLower(name), partial) {
			continue
		}
		full := filepath.Join(dir, name)
		if !h.cfg.IsPathAllowed(full) {
			continue
		}
		suggestions = append(suggestions, full)
		if len(suggestions) >= maxPathSuggestions {
			break
		}
	}
	h.writeJSON(w, http.StatusOK, suggestions)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
