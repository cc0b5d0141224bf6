package handlers

import (
	"net/http"

	"github.com/lyallcooper/sieve/internal/fileops"
	"github.com/lyallcooper/sieve/internal/services"
)

// MoveFiles handles POST /api/move_files
func (h *Handler) MoveFiles(w http.ResponseWriter, r *http.Request) {
	var opts fileops.MoveOptions
	if !h.decode(w, r, &opts) {
		return
	}
	if opts.Destination == "" {
		h.writeError(w, http.StatusBadRequest, "destination is required")
		return
	}
	if !h.checkPaths(w, opts.Destination) || !h.checkPaths(w, opts.Paths...) {
		return
	}
	h.started(w)(h.cmds.MoveFiles(opts))
}

// DeleteFiles handles POST /api/delete_files
func (h *Handler) DeleteFiles(w http.ResponseWriter, r *http.Request) {
	var opts fileops.DeleteOptions
	if !h.decode(w, r, &opts) {
		return
	}
	if !h.checkPaths(w, opts.Paths...) {
		return
	}
	h.started(w)(h.cmds.DeleteFiles(opts))
}

// RenameExt handles POST /api/rename_ext
func (h *Handler) RenameExt(w http.ResponseWriter, r *http.Request) {
	var opts fileops.RenameOptions
	if !h.decode(w, r, &opts) {
		return
	}
	paths := make([]string, len(opts.Items))
	for i, item := range opts.Items {
		paths[i] = item.Path
	}
	if !h.checkPaths(w, paths...) {
		return
	}
	h.started(w)(h.cmds.RenameExt(opts))
}

// SaveResult handles POST /api/save_result
func (h *Handler) SaveResult(w http.ResponseWriter, r *http.Request) {
	var opts services.SaveOptions
	if !h.decode(w, r, &opts) {
		return
	}
	if opts.Destination == "" {
		h.writeError(w, http.StatusBadRequest, "destination is required")
		return
	}
	if !h.checkPaths(w, opts.Destination) {
		return
	}
	h.started(w)(h.cmds.SaveResult(opts))
}

// started answers an asynchronous command with its job id or its error
func (h *Handler) started(w http.ResponseWriter) func(id string, err error) {
	return func(id string, err error) {
		if err != nil {
			h.writeCommandError(w, err)
			return
		}
		h.writeJSON(w, http.StatusAccepted, jobStarted{JobID: id})
	}
}
