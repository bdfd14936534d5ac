package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"llm-finetune/core/errs"
	"llm-finetune/core/executor"
	"llm-finetune/providers/ollama"
)

// ModelHandler handles model registration and the model daemon proxy
type ModelHandler struct {
	registrar *executor.ModelRegistrar
	daemon    *ollama.Client
}

// NewModelHandler creates a new model handler
func NewModelHandler(registrar *executor.ModelRegistrar, daemon *ollama.Client) *ModelHandler {
	return &ModelHandler{registrar: registrar, daemon: daemon}
}

// RegisterModelRequest names the job whose artifacts become a model
type RegisterModelRequest struct {
	JobID     string `json:"jobId"`
	ModelName string `json:"modelName"`
}

// PullModelRequest names a model to pull
type PullModelRequest struct {
	Model string `json:"model"`
}

// ChatRequest is a single prompt for a registered model
type ChatRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// RegisterModel handles POST /v1/models/register. A registration command
// that exits non-zero still returns its captured output.
func (h *ModelHandler) RegisterModel(w http.ResponseWriter, r *http.Request) {
	var req RegisterModelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.registrar.Register(r.Context(), req.JobID, req.ModelName)
	if errors.Is(err, errs.ErrRegistrationFailed) {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListModels handles GET /v1/models
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.daemon.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": models,
	})
}

// PullModel handles POST /v1/models/pull, relaying the daemon's progress
// as newline-delimited JSON.
func (h *ModelHandler) PullModel(w http.ResponseWriter, r *http.Request) {
	var req PullModelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	started := false
	err := h.daemon.Pull(r.Context(), req.Model, func(p ollama.PullProgress) {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			started = true
		}
		enc.Encode(p)
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err == nil {
		return
	}
	if !started {
		writeError(w, err)
		return
	}
	log.Printf("Pull of %s failed: %v", req.Model, err)
	enc.Encode(ollama.PullProgress{Error: err.Error()})
}

// Chat handles POST /v1/chat, streaming the reply as plain text
func (h *ModelHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, errs.Invalid("prompt is required"))
		return
	}

	out := &lazyTextWriter{w: w}
	err := h.daemon.StreamChat(r.Context(), req.Model, req.Prompt, out)
	if err != nil && !out.started {
		writeError(w, err)
		return
	}
	if err != nil {
		log.Printf("Chat with %s broke off: %v", req.Model, err)
	}
}

// lazyTextWriter sets the response headers on first write so that an error
// before any output can still choose its status code.
type lazyTextWriter struct {
	w       http.ResponseWriter
	started bool
}

func (l *lazyTextWriter) Write(p []byte) (int, error) {
	if !l.started {
		l.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		l.started = true
	}
	return l.w.Write(p)
}

func (l *lazyTextWriter) Flush() {
	if f, ok := l.w.(http.Flusher); ok {
		f.Flush()
	}
}
