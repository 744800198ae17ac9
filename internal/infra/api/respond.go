package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/infra/logging"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor is the single error -> HTTP status table.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCodeAlreadyUsed),
		errors.Is(err, domain.ErrCodeExpired),
		errors.Is(err, domain.ErrMissingEvidence),
		errors.Is(err, domain.ErrEvidenceTooLarge),
		errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and a short message. 5xx bodies never
// carry the underlying error text.
func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
		if errors.Is(err, domain.ErrExhaustedRetries) {
			msg = domain.ErrExhaustedRetries.Error()
		}
		if logger != nil {
			l := logging.With(r.Context(), logger)
			l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		}
	}
	writeJSON(w, status, errorBody{Error: msg})
}
