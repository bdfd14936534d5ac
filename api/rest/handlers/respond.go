package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"llm-finetune/core/errs"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// statusFor maps an error kind to its HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrRegistrationFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	http.Error(w, err.Error(), status)
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Invalid("invalid request body: %v", err)
	}
	return nil
}
