package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"housing_search/internal/lib/logger/sl"
	"housing_search/internal/services/embedding"
	"housing_search/internal/services/listing"
	"housing_search/internal/services/maintenance"
	"housing_search/internal/services/search"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	writeBody(w, status, "application/json", body)
}

func writeBody(w http.ResponseWriter, status int, contentType string, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// errorStatus сопоставляет доменные ошибки HTTP-статусам.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, search.ErrInvalidParams):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, listing.ErrListingNotFound):
		return http.StatusNotFound, "listing not found"
	case errors.Is(err, embedding.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "embedding model unavailable"
	case errors.Is(err, maintenance.ErrRunInProgress):
		return http.StatusConflict, "embedding backfill already running"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *handler) handleError(w http.ResponseWriter, err error, msg string) {
	status, text := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, slog.Int("status", status), sl.Err(err))
	} else {
		h.log.Warn(msg, slog.Int("status", status), sl.Err(err))
	}
	writeError(w, status, text)
}
