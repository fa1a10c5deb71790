package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tndang/rollcall/internal/database"
)

// ClassesHandler handles class management endpoints.
type ClassesHandler struct {
	classes database.ClassStore
	logger  *zap.Logger
}

// NewClassesHandler creates a new classes handler.
func NewClassesHandler(classes database.ClassStore, logger *zap.Logger) *ClassesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassesHandler{classes: classes, logger: logger}
}

type classResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	TeacherID int64  `json:"teacher_id,omitempty"`
}

func toClassResponse(c *database.Class) classResponse {
	return classResponse{ID: c.ID, Name: c.Name, TeacherID: c.TeacherID}
}

// List returns all classes.
func (h *ClassesHandler) List(w http.ResponseWriter, r *http.Request) {
	classes, err := h.classes.List(r.Context())
	if err != nil {
		h.logger.Error("class list failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list classes")
		return
	}

	out := make([]classResponse, 0, len(classes))
	for i := range classes {
		out = append(out, toClassResponse(&classes[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns a single class by ID.
func (h *ClassesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid class id")
		return
	}

	class, err := h.classes.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "class not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load class")
		return
	}

	respondJSON(w, http.StatusOK, toClassResponse(class))
}

type createClassRequest struct {
	Name      string `json:"name"`
	TeacherID int64  `json:"teacher_id"`
}

// Create adds a new class.
func (h *ClassesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	class := &database.Class{Name: req.Name, TeacherID: req.TeacherID}
	id, err := h.classes.Create(r.Context(), class)
	if err != nil {
		h.logger.Error("class create failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create class")
		return
	}
	class.ID = id

	respondJSON(w, http.StatusCreated, toClassResponse(class))
}

// Delete removes a class.
func (h *ClassesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid class id")
		return
	}

	if err := h.classes.Delete(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "class not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete class")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
