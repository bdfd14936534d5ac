package handlers

import (
	"net/http"

	"llm-finetune/core/datasets"
	"llm-finetune/core/executor"
	"llm-finetune/core/models"
	"llm-finetune/core/status"
)

// recentJobs is how many of the newest jobs the dashboard lists
const recentJobs = 10

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	projector  *status.Projector
	store      *datasets.Store
	supervisor *executor.Supervisor
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(projector *status.Projector, store *datasets.Store, supervisor *executor.Supervisor) *DashboardHandler {
	return &DashboardHandler{
		projector:  projector,
		store:      store,
		supervisor: supervisor,
	}
}

// GetSummary handles GET /v1/dashboard
func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.projector.List()
	if err != nil {
		writeError(w, err)
		return
	}

	counts := make(map[models.JobState]int)
	for _, st := range jobs {
		counts[st.State]++
	}

	// ids are time-ordered, so the newest jobs are at the end
	recent := make([]map[string]interface{}, 0, recentJobs)
	for i := len(jobs) - 1; i >= 0 && len(recent) < recentJobs; i-- {
		st := jobs[i]
		recent = append(recent, map[string]interface{}{
			"jobId":  st.JobID,
			"state":  st.State,
			"stage":  st.Stage,
			"source": st.Source,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": map[string]interface{}{
			"total":    len(jobs),
			"by_state": counts,
			"recent":   recent,
		},
		"datasets": len(h.store.List()),
		"launches": h.supervisor.Launches(),
	})
}
