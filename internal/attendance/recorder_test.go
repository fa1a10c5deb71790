package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/database/mock"
	"github.com/tndang/rollcall/internal/facerec"
)

func TestRecordAutomaticFirstTime(t *testing.T) {
	store := mock.NewAttendanceStore()
	recorder := NewRecorder(store, nil)

	now := time.Now().UTC()
	candidates := []facerec.Candidate{
		{StudentID: 1, Similarity: 0.95},
		{StudentID: 2, Similarity: 0.81},
	}

	accepted, err := recorder.RecordAutomatic(context.Background(), 10, candidates, now)
	if err != nil {
		t.Fatalf("RecordAutomatic: %v", err)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted events, got %d", len(accepted))
	}
	for i, ev := range accepted {
		if ev.Status != database.StatusPresent || ev.Source != database.SourceAuto {
			t.Errorf("event %d has wrong status/source: %+v", i, ev)
		}
		if ev.ID == 0 {
			t.Errorf("event %d was not assigned an ID", i)
		}
	}
}

func TestRecordAutomaticIdempotentSameDay(t *testing.T) {
	store := mock.NewAttendanceStore()
	recorder := NewRecorder(store, nil)

	now := time.Now().UTC()
	candidates := []facerec.Candidate{{StudentID: 1, Similarity: 0.9}}

	first, err := recorder.RecordAutomatic(context.Background(), 10, candidates, now)
	if err != nil {
		t.Fatalf("first RecordAutomatic: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 accepted, got %d", len(first))
	}

	// Second recognition later the same day is a silent no-op.
	second, err := recorder.RecordAutomatic(context.Background(), 10, candidates, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second RecordAutomatic: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected duplicate skip, got %d events", len(second))
	}
	if got := len(store.Events()); got != 1 {
		t.Errorf("expected exactly 1 stored event, got %d", got)
	}
}

func TestRecordAutomaticStorageErrorDoesNotBlockOthers(t *testing.T) {
	store := mock.NewAttendanceStore()
	recorder := NewRecorder(store, nil)

	now := time.Now().UTC()
	wantErr := errors.New("disk full")

	// First candidate fails, remaining ones must still be attempted.
	store.InsertError = wantErr
	accepted, err := recorder.RecordAutomatic(context.Background(), 10,
		[]facerec.Candidate{{StudentID: 1, Similarity: 0.9}}, now)
	if !errors.Is(err, wantErr) {
		t.Errorf("expected storage error to propagate, got %v", err)
	}
	if len(accepted) != 0 {
		t.Errorf("expected no accepted events on failure, got %d", len(accepted))
	}

	store.InsertError = nil
	accepted, err = recorder.RecordAutomatic(context.Background(), 10,
		[]facerec.Candidate{{StudentID: 2, Similarity: 0.8}}, now)
	if err != nil {
		t.Fatalf("RecordAutomatic after recovery: %v", err)
	}
	if len(accepted) != 1 {
		t.Errorf("expected recovery insert, got %d", len(accepted))
	}
}

func TestRecordAutomaticConcurrentSameStudent(t *testing.T) {
	store := mock.NewAttendanceStore()
	recorder := NewRecorder(store, nil)

	now := time.Now().UTC()
	candidates := []facerec.Candidate{{StudentID: 7, Similarity: 0.92}}

	var wg sync.WaitGroup
	results := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted, err := recorder.RecordAutomatic(context.Background(), 3, candidates, now)
			if err != nil {
				t.Errorf("RecordAutomatic: %v", err)
				return
			}
			results <- len(accepted)
		}()
	}
	wg.Wait()
	close(results)

	var total int
	for n := range results {
		total += n
	}
	if total != 1 {
		t.Errorf("expected exactly one event across concurrent calls, got %d", total)
	}
}

func TestRecordManualOverwritesAndBypassesDedup(t *testing.T) {
	store := mock.NewAttendanceStore()
	recorder := NewRecorder(store, nil)

	now := time.Now().UTC()

	// Automatic event exists for the day.
	if _, err := recorder.RecordAutomatic(context.Background(), 10,
		[]facerec.Candidate{{StudentID: 1, Similarity: 0.9}}, now); err != nil {
		t.Fatalf("RecordAutomatic: %v", err)
	}

	// Manual mark still goes through.
	ev, err := recorder.RecordManual(context.Background(), 10, 1, database.StatusAbsent, now)
	if err != nil {
		t.Fatalf("RecordManual: %v", err)
	}
	if ev.Source != database.SourceManual || ev.Status != database.StatusAbsent {
		t.Errorf("unexpected manual event %+v", ev)
	}

	// A second manual mark the same day overwrites instead of appending.
	ev2, err := recorder.RecordManual(context.Background(), 10, 1, database.StatusPresent, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second RecordManual: %v", err)
	}
	if ev2.ID != ev.ID {
		t.Errorf("expected overwrite of event %d, got new event %d", ev.ID, ev2.ID)
	}
	if got := len(store.Events()); got != 2 {
		t.Errorf("expected 1 auto + 1 manual event, got %d", got)
	}
}

func TestRecordManualInvalidStatus(t *testing.T) {
	recorder := NewRecorder(mock.NewAttendanceStore(), nil)
	if _, err := recorder.RecordManual(context.Background(), 1, 1, "late", time.Now()); err == nil {
		t.Error("expected error for invalid status")
	}
}
