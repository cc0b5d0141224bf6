package handlers

import (
	"net/http"
	"strconv"
)

const historyPageSize = 20

// HistoryData is one page of job runs, newest first
type HistoryData struct {
	Runs     []*JobRunView `json:"runs"`
	Page     int           `json:"page"`
	HasMore  bool          `json:"hasMore"`
	NextPage int           `json:"nextPage,omitempty"`
}

// History handles GET /api/history?page=N
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}
	offset := (page - 1) * historyPageSize

	// One extra row tells whether another page exists
	runs, err := h.db.ListJobRuns(historyPageSize+1, offset)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	hasMore := len(runs) > historyPageSize
	if hasMore {
		runs = runs[:historyPageSize]
	}

	data := HistoryData{
		Runs:    make([]*JobRunView, 0, len(runs)),
		Page:    page,
		HasMore: hasMore,
	}
	if hasMore {
		data.NextPage = page + 1
	}
	for _, run := range runs {
		data.Runs = append(data.Runs, toJobRunView(run))
	}

	h.writeJSON(w, http.StatusOK, data)
}

// HistoryRun handles GET /api/history/{job}
func (h *Handler) HistoryRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.db.GetJobRun(r.PathValue("job"))
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toJobRunView(run))
}
