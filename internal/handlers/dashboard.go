package handlers

import (
	"net/http"
)

// DashboardData is the overview the UI opens with
type DashboardData struct {
	Stats      DashboardStats  `json:"stats"`
	ActiveJobs []string        `json:"activeJobs"`
	RecentRuns []*JobRunView   `json:"recentRuns"`
	Schedules  []*ScheduleView `json:"schedules"`
}

// DashboardStats are history totals
type DashboardStats struct {
	TotalRuns int `json:"totalRuns"`
	Running   int `json:"running"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Last24h   int `json:"last24h"`
}

// Dashboard handles GET /api/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetJobStats()
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	runs, err := h.db.ListJobRuns(5, 0)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	schedules, err := h.db.ListScheduledScans()
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	data := DashboardData{
		Stats: DashboardStats{
			TotalRuns: stats.Total,
			Running:   stats.Running,
			Failed:    stats.Failed,
			Cancelled: stats.Cancelled,
			Last24h:   stats.Last24h,
		},
		ActiveJobs: h.cmds.ActiveJobs(),
		RecentRuns: make([]*JobRunView, 0, len(runs)),
		Schedules:  make([]*ScheduleView, 0, len(schedules)),
	}
	for _, run := range runs {
		data.RecentRuns = append(data.RecentRuns, toJobRunView(run))
	}
	for _, s := range schedules {
		data.Schedules = append(data.Schedules, toScheduleView(s))
	}

	h.writeJSON(w, http.StatusOK, data)
}
