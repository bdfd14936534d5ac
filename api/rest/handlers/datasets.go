package handlers

import (
	"io"
	"net/http"

	"llm-finetune/core/datasets"
	"llm-finetune/core/errs"
)

// maxUploadMemory is the part of a multipart upload kept in memory; the
// rest spills to temporary files.
const maxUploadMemory = 32 << 20

// DatasetHandler handles dataset uploads and listing
type DatasetHandler struct {
	store *datasets.Store
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(store *datasets.Store) *DatasetHandler {
	return &DatasetHandler{store: store}
}

// UploadDataset handles POST /v1/datasets (multipart field "file")
func (h *DatasetHandler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, errs.Invalid("expected a multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errs.Invalid("missing file field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, err)
		return
	}

	ds, err := h.store.Add(data, header.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ds)
}

// ListDatasets handles GET /v1/datasets
func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": h.store.List(),
	})
}
