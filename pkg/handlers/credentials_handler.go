package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/secrets"
)

// CredentialsHandler manages the fallback vision API key. The key is
// write-only over the API: reads report configured-or-not, never the
// value.
type CredentialsHandler struct {
	secrets secrets.Store
	logger  *zap.Logger
}

// NewCredentialsHandler creates a new CredentialsHandler.
func NewCredentialsHandler(secretStore secrets.Store, logger *zap.Logger) *CredentialsHandler {
	return &CredentialsHandler{secrets: secretStore, logger: logger}
}

// RegisterRoutes registers credential routes on the given mux.
func (h *CredentialsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/credentials/vision", h.Status)
	mux.HandleFunc("PUT /api/credentials/vision", h.Set)
	mux.HandleFunc("DELETE /api/credentials/vision", h.Delete)
}

// Status handles GET /api/credentials/vision.
func (h *CredentialsHandler) Status(w http.ResponseWriter, r *http.Request) {
	value, err := h.secrets.GetCredential(r.Context())
	if err != nil {
		h.logger.Error("credential lookup failed", zap.Error(err))
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, "failed to check credential")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]bool{"configured": value != ""}); err != nil {
		h.logger.Error("Failed to encode credential status", zap.Error(err))
	}
}

// SetCredentialRequest stores a new vision API key.
type SetCredentialRequest struct {
	APIKey string `json:"api_key"`
}

// Set handles PUT /api/credentials/vision.
func (h *CredentialsHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req SetCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.APIKey == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "api_key is required")
		return
	}

	if err := h.secrets.SetCredential(r.Context(), req.APIKey); err != nil {
		h.logger.Error("credential update failed", zap.Error(err))
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, "failed to store credential")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]bool{"configured": true}); err != nil {
		h.logger.Error("Failed to encode credential status", zap.Error(err))
	}
}

// Delete handles DELETE /api/credentials/vision.
func (h *CredentialsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.secrets.DeleteCredential(r.Context()); err != nil {
		h.logger.Error("credential delete failed", zap.Error(err))
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, "failed to delete credential")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]bool{"configured": false}); err != nil {
		h.logger.Error("Failed to encode credential status", zap.Error(err))
	}
}
