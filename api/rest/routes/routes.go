package routes

import (
	"net/http"

	"llm-finetune/api/rest/handlers"

	"github.com/gorilla/mux"
)

// Handlers groups the API handlers mounted under /v1
type Handlers struct {
	Datasets  *handlers.DatasetHandler
	Jobs      *handlers.JobHandler
	Models    *handlers.ModelHandler
	Tools     *handlers.ToolHandler
	Dashboard *handlers.DashboardHandler
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, h Handlers, metrics http.Handler) {
	api := r.PathPrefix("/v1").Subrouter()

	// Dataset endpoints
	api.HandleFunc("/datasets", h.Datasets.UploadDataset).Methods("POST")
	api.HandleFunc("/datasets", h.Datasets.ListDatasets).Methods("GET")

	// Job endpoints
	api.HandleFunc("/jobs", h.Jobs.SubmitJob).Methods("POST")
	api.HandleFunc("/jobs", h.Jobs.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.Jobs.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/cancel", h.Jobs.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/events", h.Jobs.GetJobEvents).Methods("GET")
	api.HandleFunc("/jobs/{id}/artifacts", h.Jobs.GetJobArtifacts).Methods("GET")
	api.HandleFunc("/jobs/{id}/config", h.Jobs.GetJobConfig).Methods("GET")

	// Model endpoints
	api.HandleFunc("/models/register", h.Models.RegisterModel).Methods("POST")
	api.HandleFunc("/models", h.Models.ListModels).Methods("GET")
	api.HandleFunc("/models/pull", h.Models.PullModel).Methods("POST")
	api.HandleFunc("/chat", h.Models.Chat).Methods("POST")

	// Tagged operations
	api.HandleFunc("/ops/{op}", h.Tools.Invoke).Methods("POST")

	api.HandleFunc("/dashboard", h.Dashboard.GetSummary).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}
}
