package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"docuquery/internal/contextutil"
	"docuquery/internal/service"
)

// ErrorResponse is the uniform error payload for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeServiceError maps domain errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, ctx context.Context, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrParse):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrIndexUnavailable):
		logger.ErrorContext(ctx, "vector index unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Vector index unavailable")
	case errors.Is(err, service.ErrEmbeddingUnavailable), errors.Is(err, service.ErrEmbeddingRejected),
		errors.Is(err, service.ErrProviderUnavailable):
		logger.ErrorContext(ctx, "upstream model service error", "error", err)
		writeError(w, http.StatusBadGateway, "External service error")
	default:
		logger.ErrorContext(ctx, "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}
