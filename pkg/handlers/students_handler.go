package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
	"github.com/classlens-inc/classlens-engine/pkg/models"
	"github.com/classlens-inc/classlens-engine/pkg/repositories"
)

// maxImportBytes bounds a roster import payload.
const maxImportBytes = 1 << 20

// StudentsHandler manages the roster over HTTP.
type StudentsHandler struct {
	repo   repositories.RosterRepository
	logger *zap.Logger
}

// NewStudentsHandler creates a new StudentsHandler.
func NewStudentsHandler(repo repositories.RosterRepository, logger *zap.Logger) *StudentsHandler {
	return &StudentsHandler{repo: repo, logger: logger}
}

// RegisterRoutes registers roster routes on the given mux.
func (h *StudentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/students", h.List)
	mux.HandleFunc("POST /api/students", h.Create)
	mux.HandleFunc("POST /api/students/import", h.Import)
}

// List handles GET /api/students.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	roster, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list students failed", zap.Error(err))
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, "failed to list students")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"students": roster}); err != nil {
		h.logger.Error("Failed to encode students", zap.Error(err))
	}
}

// CreateStudentRequest adds one student to the roster.
type CreateStudentRequest struct {
	RollNumber string `json:"roll_number"`
	Name       string `json:"name"`
}

// Create handles POST /api/students.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	req.RollNumber = strings.TrimSpace(req.RollNumber)
	req.Name = strings.TrimSpace(req.Name)
	if req.RollNumber == "" || req.Name == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "roll_number and name are required")
		return
	}

	student := models.Student{RollNumber: req.RollNumber, Name: req.Name}
	if err := h.repo.Create(r.Context(), &student); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			_ = ErrorResponse(w, http.StatusConflict, "conflict", "roll number already exists")
			return
		}
		h.logger.Error("create student failed", zap.Error(err))
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, "failed to create student")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, student); err != nil {
		h.logger.Error("Failed to encode student", zap.Error(err))
	}
}

// rosterImport is the YAML import format: a top-level students list.
type rosterImport struct {
	Students []models.Student `yaml:"students"`
}

// Import handles POST /api/students/import. The body is a YAML document
// listing students; existing roll numbers are updated in place.
func (h *StudentsHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "failed to read body")
		return
	}

	var doc rosterImport
	if err := yaml.Unmarshal(body, &doc); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid YAML: "+err.Error())
		return
	}

	for i, s := range doc.Students {
		if strings.TrimSpace(s.RollNumber) == "" || strings.TrimSpace(s.Name) == "" {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request",
				"every student needs roll_number and name")
			return
		}
		doc.Students[i].RollNumber = strings.TrimSpace(s.RollNumber)
		doc.Students[i].Name = strings.TrimSpace(s.Name)
	}
	if len(doc.Students) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "no students in document")
		return
	}

	written, err := h.repo.Upsert(r.Context(), doc.Students)
	if err != nil {
		h.logger.Error("roster import failed", zap.Error(err), zap.Int("written", written))
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, "roster import failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]int{"imported": written}); err != nil {
		h.logger.Error("Failed to encode import result", zap.Error(err))
	}
}
