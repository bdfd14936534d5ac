package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"llm-finetune/core/errs"
	"llm-finetune/core/executor"
	"llm-finetune/core/models"
	"llm-finetune/core/recovery"
	"llm-finetune/core/status"
	"llm-finetune/storage"

	"github.com/gorilla/mux"
)

// cancelTimeout bounds how long a cancel request waits for the trainer to exit
const cancelTimeout = 30 * time.Second

// EventReader reads the job event journal
type EventReader interface {
	GetJobEvents(jobID string, limit int) ([]models.JobEvent, error)
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	supervisor *executor.Supervisor
	projector  *status.Projector
	disk       *recovery.Reader
	events     EventReader
	artifacts  *storage.ArtifactManager
}

// NewJobHandler creates a new job handler
func NewJobHandler(
	supervisor *executor.Supervisor,
	projector *status.Projector,
	disk *recovery.Reader,
	events EventReader,
	artifacts *storage.ArtifactManager,
) *JobHandler {
	return &JobHandler{
		supervisor: supervisor,
		projector:  projector,
		disk:       disk,
		events:     events,
		artifacts:  artifacts,
	}
}

// SubmitJob handles POST /v1/jobs
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req executor.LaunchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	launch, err := h.supervisor.Launch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, launch)
}

// GetJob handles GET /v1/jobs/{id}. An unknown id is reported as a failed
// job, not as an HTTP error.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, h.projector.Get(jobID))
}

// ListJobs handles GET /v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.projector.List()
	if err != nil {
		writeError(w, err)
		return
	}

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := jobs[:0]
		for _, st := range jobs {
			if string(st.State) == state {
				filtered = append(filtered, st)
			}
		}
		jobs = filtered
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": jobs,
	})
}

// CancelJob handles POST /v1/jobs/{id}/cancel
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), cancelTimeout)
	defer cancel()

	st, err := h.supervisor.Terminate(ctx, jobID)
	if errors.Is(err, context.DeadlineExceeded) {
		// signalled, but the trainer has not exited yet
		writeJSON(w, http.StatusAccepted, st)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetJobEvents handles GET /v1/jobs/{id}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if !h.known(jobID) {
		writeError(w, errs.NotFound("job %s", jobID))
		return
	}

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n <= 0 {
			writeError(w, errs.Invalid("limit must be a positive integer"))
			return
		}
		limit = n
	}

	events, err := h.events.GetJobEvents(jobID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": events,
	})
}

// GetJobArtifacts handles GET /v1/jobs/{id}/artifacts
func (h *JobHandler) GetJobArtifacts(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	files, err := h.artifacts.ListArtifacts(jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"items": files,
	}
	if ckpt, err := h.artifacts.LatestCheckpoint(jobID); err == nil {
		response["latest_checkpoint"] = ckpt
	}
	writeJSON(w, http.StatusOK, response)
}

// GetJobConfig handles GET /v1/jobs/{id}/config
func (h *JobHandler) GetJobConfig(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	cfg, err := h.disk.LoadConfig(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *JobHandler) known(jobID string) bool {
	st := h.projector.Get(jobID)
	return !(st.State == models.JobStateFailed && st.Message == models.UnknownJobMessage)
}
