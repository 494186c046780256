package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"webui-accounts/internal/apperror"

	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, status int, v any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps tagged outcomes to the fixed status catalog: forbidden
// actions are 403; not-found, conflicts and bad input are 400; anything else
// is an internal failure whose detail stays in the log.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound),
		errors.Is(err, apperror.ErrConflict),
		errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		http.Error(w, "internal server error", status)
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		http.Error(w, appErr.Message, status)
		return
	}
	http.Error(w, err.Error(), status)
}
