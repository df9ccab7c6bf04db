package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "rugviz-be/pkg/errors"
	"rugviz-be/pkg/logger"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, payload interface{}, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// writeError writes an error response to the client. Application errors keep
// their status code and type; anything else becomes a generic 500.
func writeError(w http.ResponseWriter, err error, log *logger.Logger) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternalError("Internal server error", err)
	}

	if appErr.Internal != nil {
		log.WithError(appErr).Error("Request failed")
	}

	writeJSON(w, appErr.StatusCode, map[string]interface{}{
		"success": false,
		"code":    string(appErr.Type),
		"message": appErr.Message,
	}, log)
}
