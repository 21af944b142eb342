package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ragserver/internal/store"
)

// Error kinds surfaced to callers alongside an HTTP status class.
const (
	kindValidation   = "validation_error"
	kindAuth         = "auth_error"
	kindNotFound     = "not_found"
	kindInvariant    = "invariant_violation"
	kindCollaborator = "collaborator_error"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorPayload struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorPayload{Error: errorBody{Kind: kind, Message: message}})
}

// writeServiceError maps service-layer failures onto the error taxonomy.
// Collaborator and persistence failures are logged with context but surface
// generically.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, operation string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, kindNotFound, err.Error())
	case errors.Is(err, store.ErrLastSession):
		writeError(w, http.StatusBadRequest, kindInvariant, err.Error())
	default:
		logger.Error("request failed", "operation", operation, "err", err)
		writeError(w, http.StatusInternalServerError, kindCollaborator, "the request could not be completed")
	}
}
