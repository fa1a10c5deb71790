package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tndang/rollcall/internal/attendance"
	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/database/mock"
	"github.com/tndang/rollcall/internal/embedder"
	"github.com/tndang/rollcall/internal/facerec"
	"github.com/tndang/rollcall/internal/roster"
)

// fakeEmbedder returns a fixed embedding or error.
type fakeEmbedder struct {
	embedding []float32
	err       error
}

func (f *fakeEmbedder) ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

type fixture struct {
	service    *Service
	students   *mock.StudentStore
	attendance *mock.AttendanceStore
}

func newFixture(t *testing.T, emb embedder.Embedder, dim int) *fixture {
	t.Helper()
	students := mock.NewStudentStore()
	attendanceStore := mock.NewAttendanceStore()
	idx := roster.NewIndex(students, time.Minute)
	rec := attendance.NewRecorder(attendanceStore, nil)
	return &fixture{
		service:    NewService(emb, idx, rec, 0.70, dim, nil),
		students:   students,
		attendance: attendanceStore,
	}
}

func unitVec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestRecognizeMatchAndRecord(t *testing.T) {
	emb := &fakeEmbedder{embedding: unitVec(8, 2)}
	f := newFixture(t, emb, 8)

	f.students.AddStudent(database.Student{ID: 1, FullName: "Minh", ClassID: 4, Embedding: unitVec(8, 0)})
	f.students.AddStudent(database.Student{ID: 2, FullName: "Lan", ClassID: 4, Embedding: unitVec(8, 2)})

	result, err := f.service.Recognize(context.Background(), 4, []byte("img"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	m := result.Matches[0]
	if m.StudentID != 2 || m.FullName != "Lan" {
		t.Errorf("unexpected match %+v", m)
	}
	if m.Similarity < 0.999 {
		t.Errorf("expected similarity ~1, got %v", m.Similarity)
	}
	if len(result.Events) != 1 || result.Events[0].StudentID != 2 {
		t.Errorf("expected one recorded event for student 2, got %+v", result.Events)
	}
}

func TestRecognizeSecondCallSameDayRecordsNothing(t *testing.T) {
	emb := &fakeEmbedder{embedding: unitVec(8, 0)}
	f := newFixture(t, emb, 8)
	f.students.AddStudent(database.Student{ID: 1, FullName: "Minh", ClassID: 4, Embedding: unitVec(8, 0)})

	if _, err := f.service.Recognize(context.Background(), 4, []byte("img")); err != nil {
		t.Fatalf("first Recognize: %v", err)
	}
	result, err := f.service.Recognize(context.Background(), 4, []byte("img"))
	if err != nil {
		t.Fatalf("second Recognize: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Errorf("match still reported on second call, got %d", len(result.Matches))
	}
	if len(result.Events) != 0 {
		t.Errorf("expected no new events on second call, got %d", len(result.Events))
	}
	if got := len(f.attendance.Events()); got != 1 {
		t.Errorf("expected exactly one stored event, got %d", got)
	}
}

func TestRecognizeNoFace(t *testing.T) {
	f := newFixture(t, &fakeEmbedder{err: embedder.ErrNoFace}, 8)

	_, err := f.service.Recognize(context.Background(), 4, []byte("img"))
	if !errors.Is(err, embedder.ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
	if got := len(f.attendance.Events()); got != 0 {
		t.Errorf("no-face probe must not record attendance, got %d events", got)
	}
}

func TestRecognizeDimensionMismatch(t *testing.T) {
	f := newFixture(t, &fakeEmbedder{embedding: unitVec(128, 0)}, 512)

	_, err := f.service.Recognize(context.Background(), 4, []byte("img"))
	if !errors.Is(err, facerec.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRecognizeRosterLoadFailureFailsClosed(t *testing.T) {
	emb := &fakeEmbedder{embedding: unitVec(8, 0)}
	f := newFixture(t, emb, 8)
	wantErr := errors.New("db down")
	f.students.ListError = wantErr

	_, err := f.service.Recognize(context.Background(), 4, []byte("img"))
	if !errors.Is(err, wantErr) {
		t.Errorf("expected roster load failure to propagate, got %v", err)
	}
	if got := len(f.attendance.Events()); got != 0 {
		t.Errorf("load failure must not record attendance, got %d events", got)
	}
}

func TestRecognizeEmptyRosterReturnsEmptyResult(t *testing.T) {
	f := newFixture(t, &fakeEmbedder{embedding: unitVec(8, 0)}, 8)

	result, err := f.service.Recognize(context.Background(), 4, []byte("img"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(result.Matches) != 0 || len(result.Events) != 0 {
		t.Errorf("expected empty result for empty roster, got %+v", result)
	}
}

func TestRecognizeGroupPhotoMultiMatch(t *testing.T) {
	// A probe between two distinct enrolled embeddings clears the threshold
	// for both; group photos accept multiple students.
	probe := []float32{1, 1, 0, 0}
	emb := &fakeEmbedder{embedding: probe}
	f := newFixture(t, emb, 4)

	f.students.AddStudent(database.Student{ID: 1, FullName: "A", ClassID: 4, Embedding: []float32{1, 0.5, 0, 0}})
	f.students.AddStudent(database.Student{ID: 2, FullName: "B", ClassID: 4, Embedding: []float32{0.5, 1, 0, 0}})

	result, err := f.service.Recognize(context.Background(), 4, []byte("img"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected both students accepted, got %d", len(result.Matches))
	}
	if len(result.Events) != 2 {
		t.Errorf("expected both recorded, got %d", len(result.Events))
	}
}

func TestRecognizePartialRecordingFailure(t *testing.T) {
	emb := &fakeEmbedder{embedding: unitVec(8, 0)}
	f := newFixture(t, emb, 8)
	f.students.AddStudent(database.Student{ID: 1, FullName: "Minh", ClassID: 4, Embedding: unitVec(8, 0)})

	wantErr := errors.New("write failed")
	f.attendance.InsertError = wantErr

	result, err := f.service.Recognize(context.Background(), 4, []byte("img"))
	if !errors.Is(err, wantErr) {
		t.Errorf("expected storage error, got %v", err)
	}
	// Matches are still reported even when recording failed.
	if result == nil || len(result.Matches) != 1 {
		t.Errorf("expected matches alongside recording error, got %+v", result)
	}
}

func TestMarkManual(t *testing.T) {
	f := newFixture(t, &fakeEmbedder{embedding: unitVec(8, 0)}, 8)

	ev, err := f.service.MarkManual(context.Background(), 4, 9, database.StatusAbsent)
	if err != nil {
		t.Fatalf("MarkManual: %v", err)
	}
	if ev.Source != database.SourceManual || ev.Status != database.StatusAbsent {
		t.Errorf("unexpected event %+v", ev)
	}
}
