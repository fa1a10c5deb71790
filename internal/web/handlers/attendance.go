package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tndang/rollcall/internal/database"
)

// AttendanceHandler handles manual attendance marking and day listings.
type AttendanceHandler struct {
	service Recognizer
	store   database.AttendanceStore
	logger  *zap.Logger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(service Recognizer, store database.AttendanceStore, logger *zap.Logger) *AttendanceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceHandler{service: service, store: store, logger: logger}
}

// markRequest is the manual attendance request body.
type markRequest struct {
	StudentID int64  `json:"student_id"`
	Status    string `json:"status"`
}

// Mark creates or overwrites a manual attendance event for today. A manual
// mark always wins over an automatic one, so a teacher can correct a missed
// or mistaken recognition.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	classID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid class id")
		return
	}

	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.StudentID == 0 {
		respondError(w, http.StatusBadRequest, "student_id is required")
		return
	}

	status := database.AttendanceStatus(req.Status)
	if status == "" {
		status = database.StatusPresent
	}
	if !database.ValidStatus(status) {
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	ev, err := h.service.MarkManual(r.Context(), classID, req.StudentID, status)
	if err != nil {
		h.logger.Error("manual mark failed",
			zap.Int64("class_id", classID),
			zap.Int64("student_id", req.StudentID),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to record attendance")
		return
	}

	respondJSON(w, http.StatusOK, toEventRecords([]database.AttendanceEvent{*ev})[0])
}

// List returns all attendance events for a class on a day. The day comes from
// the "date" query parameter (YYYY-MM-DD, UTC) and defaults to today.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	classID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid class id")
		return
	}

	day, err := parseDay(r, "date")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	events, err := h.store.ListByClassDay(r.Context(), classID, day)
	if err != nil {
		h.logger.Error("attendance list failed", zap.Int64("class_id", classID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"class_id": classID,
		"date":     day.UTC().Format("2006-01-02"),
		"events":   toEventRecords(events),
	})
}
