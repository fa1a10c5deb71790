package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/embedder"
	"github.com/tndang/rollcall/internal/facerec"
	"github.com/tndang/rollcall/internal/recognition"
)

// Recognizer runs the face recognition pipeline against a class roster.
type Recognizer interface {
	Recognize(ctx context.Context, classID int64, image []byte) (*recognition.Result, error)
	MarkManual(ctx context.Context, classID, studentID int64, status database.AttendanceStatus) (*database.AttendanceEvent, error)
}

// RecognizeHandler handles probe image recognition endpoints.
type RecognizeHandler struct {
	service Recognizer
	logger  *zap.Logger
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(service Recognizer, logger *zap.Logger) *RecognizeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecognizeHandler{service: service, logger: logger}
}

// RecognizeResponse reports the accepted matches for a probe image.
type RecognizeResponse struct {
	ClassID  int64                   `json:"class_id"`
	Matches  []recognition.Match     `json:"matches"`
	Recorded []attendanceEventRecord `json:"recorded"`
	Message  string                  `json:"message,omitempty"`
}

type attendanceEventRecord struct {
	ID         int64   `json:"id"`
	StudentID  int64   `json:"student_id"`
	Status     string  `json:"status"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity,omitempty"`
	RecordedAt string  `json:"recorded_at"`
}

func toEventRecords(events []database.AttendanceEvent) []attendanceEventRecord {
	out := make([]attendanceEventRecord, 0, len(events))
	for _, ev := range events {
		out = append(out, attendanceEventRecord{
			ID:         ev.ID,
			StudentID:  ev.StudentID,
			Status:     string(ev.Status),
			Source:     string(ev.Source),
			Similarity: ev.Similarity,
			RecordedAt: ev.RecordedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}

// Recognize accepts a multipart probe image, matches it against the class
// roster and records attendance for every accepted student.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	classID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid class id")
		return
	}

	image, err := readProbeImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Recognize(r.Context(), classID, image)
	if err != nil {
		switch {
		case errors.Is(err, embedder.ErrNoFace):
			// Not a failure: a photo without a detectable face simply
			// matches nobody.
			respondJSON(w, http.StatusOK, RecognizeResponse{
				ClassID: classID,
				Message: "no face detected in image",
			})
		case errors.Is(err, facerec.ErrDimensionMismatch):
			respondError(w, http.StatusUnprocessableEntity, "embedding dimension mismatch")
		case errors.Is(err, facerec.ErrDegenerateVector):
			respondError(w, http.StatusUnprocessableEntity, "degenerate face embedding")
		default:
			h.logger.Error("recognition failed", zap.Int64("class_id", classID), zap.Error(err))
			if result != nil {
				// Matching succeeded but recording failed for at least one
				// candidate. Return the accepted matches and whatever was
				// recorded; a retry is safe since recorded students dedup
				// to a skip.
				respondJSON(w, http.StatusInternalServerError, RecognizeResponse{
					ClassID:  classID,
					Matches:  result.Matches,
					Recorded: toEventRecords(result.Events),
					Message:  "attendance recording incomplete",
				})
				return
			}
			respondError(w, http.StatusInternalServerError, "recognition failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, RecognizeResponse{
		ClassID:  classID,
		Matches:  result.Matches,
		Recorded: toEventRecords(result.Events),
	})
}

// readProbeImage extracts the uploaded image from a multipart form. The file
// may arrive under the "image" or "file" field.
func readProbeImage(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, errors.New("failed to parse multipart form")
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		file, _, err = r.FormFile("file")
		if err != nil {
			return nil, errors.New("image file is required")
		}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("failed to read image")
	}
	if len(data) == 0 {
		return nil, errors.New("image file is empty")
	}
	return data, nil
}
