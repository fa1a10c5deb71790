package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/database/mock"
	"github.com/tndang/rollcall/internal/embedder"
	"github.com/tndang/rollcall/internal/roster"
)

type studentsFixture struct {
	handler  *StudentsHandler
	students *mock.StudentStore
	roster   *roster.Index
	identify *database.IdentifyIndex
}

func newStudentsFixture(t *testing.T, emb embedder.Embedder) *studentsFixture {
	t.Helper()
	students := mock.NewStudentStore()
	rosterIdx := roster.NewIndex(students, time.Minute)
	identify := database.NewIdentifyIndex()
	return &studentsFixture{
		handler:  NewStudentsHandler(students, emb, rosterIdx, identify, nil),
		students: students,
		roster:   rosterIdx,
		identify: identify,
	}
}

func TestStudentsListByClass(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{})
	f.students.AddStudent(database.Student{ID: 1, FullName: "Minh", ClassID: 4, Embedding: []float32{1, 0}})
	f.students.AddStudent(database.Student{ID: 2, FullName: "Lan", ClassID: 5})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/classes/4/students", nil)
	req = requestWithChiParams(req, map[string]string{"id": "4"})

	f.handler.ListByClass(w, req)

	assertStatusCode(t, w, http.StatusOK)

	var resp []studentResponse
	parseJSONResponse(t, w, &resp)
	if len(resp) != 1 {
		t.Fatalf("expected 1 student, got %d", len(resp))
	}
	if resp[0].FullName != "Minh" || !resp[0].HasFace {
		t.Errorf("unexpected student %+v", resp[0])
	}
}

func TestStudentsRefreshRosters(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{})
	f.students.AddStudent(database.Student{ID: 1, FullName: "Minh", ClassID: 4, Embedding: []float32{1, 0}})

	// Warm the cache, then enroll a student behind the handler's back.
	ctx := context.Background()
	if _, err := f.roster.Load(ctx, 4); err != nil {
		t.Fatalf("warm roster: %v", err)
	}
	f.students.AddStudent(database.Student{ID: 2, FullName: "Lan", ClassID: 4, Embedding: []float32{0, 1}})

	snap, err := f.roster.Load(ctx, 4)
	if err != nil {
		t.Fatalf("cached roster: %v", err)
	}
	if len(snap.Entries) != 1 {
		t.Fatalf("expected stale cache with 1 entry, got %d", len(snap.Entries))
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/rosters/refresh", nil)

	f.handler.RefreshRosters(w, req)

	assertStatusCode(t, w, http.StatusOK)

	snap, err = f.roster.Load(ctx, 4)
	if err != nil {
		t.Fatalf("refreshed roster: %v", err)
	}
	if len(snap.Entries) != 2 {
		t.Errorf("expected refreshed roster with 2 entries, got %d", len(snap.Entries))
	}
	if f.identify.Count() != 2 {
		t.Errorf("expected 2 indexed students, got %d", f.identify.Count())
	}
}

func TestStudentsRefreshRosters_StoreError(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{})
	f.students.ListError = errors.New("db down")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/rosters/refresh", nil)

	f.handler.RefreshRosters(w, req)

	assertStatusCode(t, w, http.StatusInternalServerError)
}

func TestStudentsGet_NotFound(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/students/99", nil)
	req = requestWithChiParams(req, map[string]string{"id": "99"})

	f.handler.Get(w, req)

	assertStatusCode(t, w, http.StatusNotFound)
}

func TestStudentsSearch_RequiresKeyword(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/students/search", nil)

	f.handler.Search(w, req)

	assertStatusCode(t, w, http.StatusBadRequest)
}

func TestStudentsCreate_WithFace(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{embedding: []float32{3, 4}})

	req := multipartImageRequest(t, "/api/v1/students", "image", []byte("jpeg-bytes"), map[string]string{
		"student": `{"full_name":"Trần Văn Minh","age":12,"class_id":4}`,
	})
	w := httptest.NewRecorder()

	f.handler.Create(w, req)

	assertStatusCode(t, w, http.StatusCreated)

	var resp studentResponse
	parseJSONResponse(t, w, &resp)
	if resp.ID == 0 || !resp.HasFace || resp.Dim != 2 {
		t.Errorf("unexpected student %+v", resp)
	}

	// The identify index picks up the new face.
	if f.identify.Count() != 1 {
		t.Errorf("identify index count = %d, want 1", f.identify.Count())
	}
}

func TestStudentsCreate_WithoutFace(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{})

	req := multipartImageRequest(t, "/api/v1/students", "image", nil, map[string]string{
		"student": `{"full_name":"Lan","class_id":4}`,
	})
	w := httptest.NewRecorder()

	f.handler.Create(w, req)

	assertStatusCode(t, w, http.StatusCreated)

	var resp studentResponse
	parseJSONResponse(t, w, &resp)
	if resp.HasFace {
		t.Error("student without photo should have no face")
	}
	if f.identify.Count() != 0 {
		t.Errorf("identify index count = %d, want 0", f.identify.Count())
	}
}

func TestStudentsCreate_NoFaceInPhoto(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{err: embedder.ErrNoFace})

	req := multipartImageRequest(t, "/api/v1/students", "image", []byte("jpeg-bytes"), map[string]string{
		"student": `{"full_name":"Lan","class_id":4}`,
	})
	w := httptest.NewRecorder()

	f.handler.Create(w, req)

	assertStatusCode(t, w, http.StatusUnprocessableEntity)
}

func TestStudentsCreate_MissingFields(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{})

	req := multipartImageRequest(t, "/api/v1/students", "image", nil, map[string]string{
		"student": `{"age":12}`,
	})
	w := httptest.NewRecorder()

	f.handler.Create(w, req)

	assertStatusCode(t, w, http.StatusBadRequest)
}

func TestStudentsUpdateFace(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{embedding: []float32{0, 1}})
	id := f.students.AddStudent(database.Student{FullName: "Minh", ClassID: 4, Embedding: []float32{1, 0}})

	req := multipartImageRequest(t, "/api/v1/students/1/face", "image", []byte("jpeg-bytes"), nil)
	req.Method = http.MethodPut
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	w := httptest.NewRecorder()

	f.handler.UpdateFace(w, req)

	assertStatusCode(t, w, http.StatusOK)

	updated, err := f.students.Get(req.Context(), id)
	if err != nil {
		t.Fatalf("failed to load student: %v", err)
	}
	if len(updated.Embedding) != 2 || updated.Embedding[0] != 0 || updated.Embedding[1] != 1 {
		t.Errorf("embedding not replaced, got %v", updated.Embedding)
	}
}

func TestStudentsDelete(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{})
	id := f.students.AddStudent(database.Student{FullName: "Minh", ClassID: 4, Embedding: []float32{1, 0}})
	f.identify.Add(&database.Student{ID: id, FullName: "Minh", ClassID: 4, Embedding: []float32{1, 0}})

	req := httptest.NewRequest("DELETE", "/api/v1/students/1", nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	w := httptest.NewRecorder()

	f.handler.Delete(w, req)

	assertStatusCode(t, w, http.StatusOK)
	if f.identify.Count() != 0 {
		t.Errorf("identify index count = %d after delete, want 0", f.identify.Count())
	}
}

func TestStudentsIdentify(t *testing.T) {
	f := newStudentsFixture(t, &stubEmbedder{embedding: []float32{1, 0, 0, 0}})
	f.identify.Add(&database.Student{ID: 1, FullName: "Minh", ClassID: 4, Embedding: []float32{1, 0, 0, 0}})
	f.identify.Add(&database.Student{ID: 2, FullName: "Lan", ClassID: 5, Embedding: []float32{0, 1, 0, 0}})

	req := multipartImageRequest(t, "/api/v1/students/identify?k=1", "image", []byte("jpeg-bytes"), nil)
	w := httptest.NewRecorder()

	f.handler.Identify(w, req)

	assertStatusCode(t, w, http.StatusOK)

	var resp struct {
		Matches []identifyMatch `json:"matches"`
	}
	parseJSONResponse(t, w, &resp)
	if len(resp.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(resp.Matches))
	}
	if resp.Matches[0].StudentID != 1 || resp.Matches[0].Similarity < 0.999 {
		t.Errorf("unexpected match %+v", resp.Matches[0])
	}
}

func TestStudentsIdentify_NoIndex(t *testing.T) {
	students := mock.NewStudentStore()
	handler := NewStudentsHandler(students, &stubEmbedder{}, nil, nil, nil)

	req := multipartImageRequest(t, "/api/v1/students/identify", "image", []byte("jpeg-bytes"), nil)
	w := httptest.NewRecorder()

	handler.Identify(w, req)

	assertStatusCode(t, w, http.StatusServiceUnavailable)
}
