package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/models"
	"github.com/classlens-inc/classlens-engine/pkg/services"
)

// maxImageBytes bounds uploaded sheet photos. Phone photos of a sheet
// sit well under this.
const maxImageBytes = 20 << 20

// AttendanceHandler exposes the recognition pipeline and the record
// store over HTTP.
type AttendanceHandler struct {
	recognition services.RecognitionService
	reconcile   services.ReconcileService
	logger      *zap.Logger
}

// NewAttendanceHandler creates a new AttendanceHandler.
func NewAttendanceHandler(recognition services.RecognitionService, reconcile services.ReconcileService, logger *zap.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		recognition: recognition,
		reconcile:   reconcile,
		logger:      logger,
	}
}

// RegisterRoutes registers attendance routes on the given mux.
func (h *AttendanceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/attendance/process", h.ProcessImage)
	mux.HandleFunc("POST /api/attendance/escalate", h.Escalate)
	mux.HandleFunc("GET /api/attendance/records", h.Records)
	mux.HandleFunc("POST /api/attendance/toggle", h.Toggle)
	mux.HandleFunc("GET /api/attendance/state", h.State)
}

// ProcessImage handles POST /api/attendance/process.
// Expects multipart form data with an "image" file and an optional
// "date" field (YYYY-MM-DD, defaults to today).
func (h *AttendanceHandler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "expected multipart form data")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "image file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "failed to read image")
		return
	}

	date, err := parseDateParam(r.FormValue("date"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	outcome, err := h.recognition.ProcessImage(r.Context(), image, date)
	if err != nil {
		h.logger.Error("process image failed", zap.Error(err))
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, outcome); err != nil {
		h.logger.Error("Failed to encode outcome", zap.Error(err))
	}
}

// EscalateRequest settles a pending escalation offer.
type EscalateRequest struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	Accept    bool      `json:"accept"`
}

// Escalate handles POST /api/attendance/escalate.
func (h *AttendanceHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	var req EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.AttemptID == uuid.Nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "attempt_id is required")
		return
	}

	outcome, err := h.recognition.Escalate(r.Context(), req.AttemptID, req.Accept)
	if err != nil {
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, outcome); err != nil {
		h.logger.Error("Failed to encode outcome", zap.Error(err))
	}
}

// RecordsResponse lists one day's stored attendance.
type RecordsResponse struct {
	Date    string                    `json:"date"`
	Records []models.AttendanceRecord `json:"records"`
}

// Records handles GET /api/attendance/records?date=YYYY-MM-DD.
func (h *AttendanceHandler) Records(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r.URL.Query().Get("date"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	records, err := h.reconcile.RecordsForDay(r.Context(), date)
	if err != nil {
		h.logger.Error("list records failed", zap.Error(err))
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, err.Error())
		return
	}

	response := RecordsResponse{
		Date:    models.DayOf(date).Format("2006-01-02"),
		Records: records,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode records", zap.Error(err))
	}
}

// ToggleRequest flips one student's presence for one day.
type ToggleRequest struct {
	Date       string `json:"date"`
	RollNumber string `json:"roll_number"`
}

// Toggle handles POST /api/attendance/toggle.
func (h *AttendanceHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.RollNumber == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "roll_number is required")
		return
	}

	date, err := parseDateParam(req.Date)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	record, err := h.reconcile.Toggle(r.Context(), date, req.RollNumber)
	if err != nil {
		h.logger.Error("toggle failed", zap.Error(err))
		status, code := statusForError(err)
		_ = ErrorResponse(w, status, code, err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, record); err != nil {
		h.logger.Error("Failed to encode record", zap.Error(err))
	}
}

// State handles GET /api/attendance/state.
func (h *AttendanceHandler) State(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{"state": string(h.recognition.CurrentState())}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode state", zap.Error(err))
	}
}

// parseDateParam parses a YYYY-MM-DD date, defaulting to today.
func parseDateParam(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}
