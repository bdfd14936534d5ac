package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"llm-finetune/core/errs"
	"llm-finetune/core/ops"

	"github.com/gorilla/mux"
)

// ToolHandler exposes the tagged operation set over HTTP
type ToolHandler struct {
	dispatcher *ops.Dispatcher
}

// NewToolHandler creates a new tool handler
func NewToolHandler(dispatcher *ops.Dispatcher) *ToolHandler {
	return &ToolHandler{dispatcher: dispatcher}
}

// Invoke handles POST /v1/ops/{op}; the body carries the operation's arguments
func (h *ToolHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, errs.Invalid("read body: %v", err))
		return
	}

	op, err := ops.Decode(mux.Vars(r)["op"], json.RawMessage(raw))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), op)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"op":     op.Name(),
		"result": result,
	})
}
