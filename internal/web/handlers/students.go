package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/embedder"
	"github.com/tndang/rollcall/internal/roster"
)

// StudentsHandler handles student enrollment and lookup endpoints.
type StudentsHandler struct {
	students database.StudentStore
	embedder embedder.Embedder
	roster   *roster.Index
	identify *database.IdentifyIndex
	logger   *zap.Logger
}

// NewStudentsHandler creates a new students handler. The identify index may
// be nil, in which case the identify endpoint reports unavailable.
func NewStudentsHandler(students database.StudentStore, emb embedder.Embedder, rosterIdx *roster.Index, identify *database.IdentifyIndex, logger *zap.Logger) *StudentsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentsHandler{
		students: students,
		embedder: emb,
		roster:   rosterIdx,
		identify: identify,
		logger:   logger,
	}
}

// studentResponse is the JSON shape of a student. Embeddings never leave the
// server; only their presence is reported.
type studentResponse struct {
	ID        int64  `json:"id"`
	FullName  string `json:"full_name"`
	Age       int    `json:"age,omitempty"`
	Address   string `json:"address,omitempty"`
	Email     string `json:"email,omitempty"`
	ClassID   int64  `json:"class_id"`
	HasFace   bool   `json:"has_face"`
	Dim       int    `json:"dim,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toStudentResponse(s *database.Student) studentResponse {
	resp := studentResponse{
		ID:       s.ID,
		FullName: s.FullName,
		Age:      s.Age,
		Address:  s.Address,
		Email:    s.Email,
		ClassID:  s.ClassID,
		HasFace:  len(s.Embedding) > 0,
		Dim:      s.Dim,
	}
	if !s.CreatedAt.IsZero() {
		resp.CreatedAt = s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func toStudentResponses(students []database.Student) []studentResponse {
	out := make([]studentResponse, 0, len(students))
	for i := range students {
		out = append(out, toStudentResponse(&students[i]))
	}
	return out
}

// ListByClass returns all students of a class.
func (h *StudentsHandler) ListByClass(w http.ResponseWriter, r *http.Request) {
	classID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid class id")
		return
	}

	students, err := h.students.ListByClass(r.Context(), classID)
	if err != nil {
		h.logger.Error("student list failed", zap.Int64("class_id", classID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	respondJSON(w, http.StatusOK, toStudentResponses(students))
}

// Get returns a single student by ID.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	student, err := h.students.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "student not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load student")
		return
	}

	respondJSON(w, http.StatusOK, toStudentResponse(student))
}

// Search finds students by name keyword. Diacritics are ignored, so "Tran"
// matches "Trần".
func (h *StudentsHandler) Search(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		respondError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	students, err := h.students.Search(r.Context(), keyword)
	if err != nil {
		h.logger.Error("student search failed", zap.String("keyword", sanitizeForLog(keyword)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	respondJSON(w, http.StatusOK, toStudentResponses(students))
}

// createStudentRequest is the enrollment request body metadata. The face
// photo arrives as a separate multipart file.
type createStudentRequest struct {
	FullName string `json:"full_name"`
	Age      int    `json:"age"`
	Address  string `json:"address"`
	Email    string `json:"email"`
	ClassID  int64  `json:"class_id"`
}

// Create enrolls a student. The request is multipart: a "student" JSON part
// with the metadata and an optional "image" part with the face photo. When a
// photo is present its embedding is computed and stored alongside.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	var req createStudentRequest
	if err := json.Unmarshal([]byte(r.FormValue("student")), &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.FullName == "" || req.ClassID == 0 {
		respondError(w, http.StatusBadRequest, "full_name and class_id are required")
		return
	}

	student := &database.Student{
		FullName: req.FullName,
		Age:      req.Age,
		Address:  req.Address,
		Email:    req.Email,
		ClassID:  req.ClassID,
	}

	if file, _, err := r.FormFile("image"); err == nil {
		image, readErr := io.ReadAll(file)
		file.Close()
		if readErr != nil {
			respondError(w, http.StatusBadRequest, "failed to read image")
			return
		}

		vec, err := h.embedder.ComputeEmbedding(r.Context(), image)
		if err != nil {
			if errors.Is(err, embedder.ErrNoFace) {
				respondError(w, http.StatusUnprocessableEntity, "no face detected in image")
				return
			}
			h.logger.Error("enrollment embedding failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to compute face embedding")
			return
		}
		student.Embedding = vec
		student.Dim = len(vec)
	}

	id, err := h.students.Create(r.Context(), student)
	if err != nil {
		h.logger.Error("student create failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create student")
		return
	}
	student.ID = id

	h.afterEnrollmentChange(student)

	respondJSON(w, http.StatusCreated, toStudentResponse(student))
}

// UpdateFace replaces a student's face embedding from a new photo.
func (h *StudentsHandler) UpdateFace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	student, err := h.students.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "student not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load student")
		return
	}

	image, err := readProbeImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	vec, err := h.embedder.ComputeEmbedding(r.Context(), image)
	if err != nil {
		if errors.Is(err, embedder.ErrNoFace) {
			respondError(w, http.StatusUnprocessableEntity, "no face detected in image")
			return
		}
		h.logger.Error("face update embedding failed", zap.Int64("student_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to compute face embedding")
		return
	}

	student.Embedding = vec
	student.Dim = len(vec)
	if err := h.students.Update(r.Context(), student); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update student")
		return
	}

	h.afterEnrollmentChange(student)

	respondJSON(w, http.StatusOK, toStudentResponse(student))
}

// Delete removes a student and their attendance history.
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	student, err := h.students.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "student not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load student")
		return
	}

	if err := h.students.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete student")
		return
	}

	if h.roster != nil {
		h.roster.Invalidate(student.ClassID)
	}
	if h.identify != nil {
		h.identify.Remove(id)
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// identifyMatch is one candidate returned by the identify endpoint.
type identifyMatch struct {
	StudentID  int64   `json:"student_id"`
	FullName   string  `json:"full_name"`
	ClassID    int64   `json:"class_id"`
	Similarity float64 `json:"similarity"`
}

// Identify looks up a face photo across every enrolled student, regardless
// of class. It answers "who is this" without recording attendance.
func (h *StudentsHandler) Identify(w http.ResponseWriter, r *http.Request) {
	if h.identify == nil {
		respondError(w, http.StatusServiceUnavailable, "identify index not available")
		return
	}

	image, err := readProbeImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	k := 5
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 50 {
			respondError(w, http.StatusBadRequest, "k must be between 1 and 50")
			return
		}
		k = parsed
	}

	vec, err := h.embedder.ComputeEmbedding(r.Context(), image)
	if err != nil {
		if errors.Is(err, embedder.ErrNoFace) {
			respondError(w, http.StatusUnprocessableEntity, "no face detected in image")
			return
		}
		h.logger.Error("identify embedding failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to compute face embedding")
		return
	}

	ids, similarities, err := h.identify.Search(vec, k)
	if err != nil {
		h.logger.Error("identify search failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "identify search failed")
		return
	}

	matches := make([]identifyMatch, 0, len(ids))
	for i, id := range ids {
		student := h.identify.Student(id)
		if student == nil {
			continue
		}
		matches = append(matches, identifyMatch{
			StudentID:  id,
			FullName:   student.FullName,
			ClassID:    student.ClassID,
			Similarity: similarities[i],
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// afterEnrollmentChange keeps the roster cache and identify index in sync
// with a changed student record.
func (h *StudentsHandler) afterEnrollmentChange(student *database.Student) {
	if h.roster != nil {
		h.roster.Invalidate(student.ClassID)
	}
	if h.identify != nil && len(student.Embedding) > 0 {
		h.identify.Add(student)
	}
}

// RefreshRosters drops every cached roster and rebuilds the identify index
// from storage. Enrollment changes made outside this process (batch CLI
// enrollment, legacy import) become visible without waiting for the TTL.
func (h *StudentsHandler) RefreshRosters(w http.ResponseWriter, r *http.Request) {
	if h.roster != nil {
		h.roster.InvalidateAll()
	}

	indexed := 0
	if h.identify != nil {
		students, err := h.students.ListWithEmbeddings(r.Context())
		if err != nil {
			h.logger.Error("roster refresh failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to reload enrolled students")
			return
		}
		if err := h.identify.Build(students); err != nil {
			h.logger.Error("identify index rebuild failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to rebuild identify index")
			return
		}
		indexed = h.identify.Count()
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "indexed": indexed})
}
