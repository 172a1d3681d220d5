package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusForError maps pipeline sentinels to HTTP status codes. Unknown
// errors fall through to 500.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrRecognitionBusy):
		return http.StatusConflict, "recognition_busy"
	case errors.Is(err, apperrors.ErrStaleAttempt):
		return http.StatusConflict, "stale_attempt"
	case errors.Is(err, apperrors.ErrNoPendingEscalation):
		return http.StatusNotFound, "no_pending_escalation"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrCredentialMissing):
		return http.StatusPreconditionFailed, "credential_missing"
	case errors.Is(err, apperrors.ErrStoreAccess):
		return http.StatusBadGateway, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
