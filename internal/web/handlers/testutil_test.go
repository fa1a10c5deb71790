package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/recognition"
)

// stubEmbedder returns a fixed embedding or error for any image.
type stubEmbedder struct {
	embedding []float32
	err       error
}

func (s *stubEmbedder) ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.embedding, nil
}

// stubRecognizer records calls and returns canned results.
type stubRecognizer struct {
	result *recognition.Result
	event  *database.AttendanceEvent
	err    error

	recognizeCalls []int64
	manualCalls    []database.AttendanceStatus
}

func (s *stubRecognizer) Recognize(ctx context.Context, classID int64, image []byte) (*recognition.Result, error) {
	s.recognizeCalls = append(s.recognizeCalls, classID)
	// result and err may both be set, mirroring a partial recording failure.
	return s.result, s.err
}

func (s *stubRecognizer) MarkManual(ctx context.Context, classID, studentID int64, status database.AttendanceStatus) (*database.AttendanceEvent, error) {
	s.manualCalls = append(s.manualCalls, status)
	if s.err != nil {
		return nil, s.err
	}
	if s.event != nil {
		return s.event, nil
	}
	ev := &database.AttendanceEvent{
		ID:        1,
		ClassID:   classID,
		StudentID: studentID,
		Status:    status,
		Source:    database.SourceManual,
	}
	return ev, nil
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartImageRequest builds a multipart request carrying an image part and
// optional extra form fields.
func multipartImageRequest(t *testing.T, path, field string, image []byte, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if image != nil {
		part, err := mw.CreateFormFile(field, "probe.jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := io.Copy(part, bytes.NewReader(image)); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
