package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agrocoop/billing-api/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps domain sentinels onto HTTP status codes. Unknown errors
// become opaque 500s so internals never leak to clients.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, types.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, types.ErrBadRequest):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, types.ErrUnauthenticated):
		status, message = http.StatusUnauthorized, "authentication required"
	case errors.Is(err, types.ErrForbidden):
		status, message = http.StatusForbidden, "forbidden"
	case errors.Is(err, types.ErrNoSeatsRemaining):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, types.ErrMemberNotActive):
		status, message = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, types.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	default:
		logger.ErrorContext(r.Context(), "Unhandled API error",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.ErrBadRequest
	}
	return nil
}
