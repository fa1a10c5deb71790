package roster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/database/mock"
)

func seedStudents(store *mock.StudentStore, classID int64, n int) {
	for i := 0; i < n; i++ {
		emb := make([]float32, 8)
		emb[i%8] = 1
		store.AddStudent(database.Student{
			FullName:  "Student",
			ClassID:   classID,
			Embedding: emb,
		})
	}
}

func TestLoadBuildsNormalizedSnapshot(t *testing.T) {
	store := mock.NewStudentStore()
	store.AddStudent(database.Student{
		ID: 1, FullName: "Lan", ClassID: 5, Embedding: []float32{3, 4, 0, 0},
	})

	idx := NewIndex(store, time.Minute)
	snap, err := idx.Load(context.Background(), 5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap.Entries))
	}
	e := snap.Entries[0]
	if e.Normalized == nil {
		t.Fatal("expected pre-normalized embedding")
	}
	if e.Normalized[0] != 0.6 || e.Normalized[1] != 0.8 {
		t.Errorf("unexpected normalized embedding %v", e.Normalized)
	}
	if snap.Names[1] != "Lan" {
		t.Errorf("expected name map populated, got %v", snap.Names)
	}
}

func TestLoadEmptyClassIsNotAnError(t *testing.T) {
	idx := NewIndex(mock.NewStudentStore(), time.Minute)
	snap, err := idx.Load(context.Background(), 99)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Entries) != 0 {
		t.Errorf("expected empty snapshot, got %d entries", len(snap.Entries))
	}
}

func TestLoadStoreFailureFailsClosed(t *testing.T) {
	store := mock.NewStudentStore()
	wantErr := errors.New("connection refused")
	store.ListError = wantErr

	idx := NewIndex(store, time.Minute)
	if _, err := idx.Load(context.Background(), 1); !errors.Is(err, wantErr) {
		t.Errorf("expected store error to propagate, got %v", err)
	}
}

func TestLoadSkipsStudentsWithoutEmbedding(t *testing.T) {
	store := mock.NewStudentStore()
	store.AddStudent(database.Student{ID: 1, FullName: "Has Photo", ClassID: 1, Embedding: []float32{1, 0}})
	store.AddStudent(database.Student{ID: 2, FullName: "No Photo", ClassID: 1})

	idx := NewIndex(store, time.Minute)
	snap, err := idx.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].StudentID != 1 {
		t.Errorf("expected only enrolled student, got %+v", snap.Entries)
	}
}

func TestLoadCachesUntilInvalidate(t *testing.T) {
	store := mock.NewStudentStore()
	seedStudents(store, 1, 3)

	idx := NewIndex(store, time.Hour)
	first, err := idx.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}

	// New enrollment is invisible until invalidation.
	store.AddStudent(database.Student{FullName: "Late", ClassID: 1, Embedding: []float32{0, 0, 0, 0, 0, 0, 0, 1}})

	cached, err := idx.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("cached Load: %v", err)
	}
	if cached != first {
		t.Error("expected cached snapshot to be reused")
	}

	idx.Invalidate(1)
	fresh, err := idx.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("fresh Load: %v", err)
	}
	if len(fresh.Entries) != 4 {
		t.Errorf("expected refreshed roster of 4, got %d", len(fresh.Entries))
	}
}

func TestLoadZeroTTLDisablesCache(t *testing.T) {
	store := mock.NewStudentStore()
	seedStudents(store, 1, 1)

	idx := NewIndex(store, 0)
	first, err := idx.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := idx.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if first == second {
		t.Error("expected a fresh snapshot per Load with ttl 0")
	}
}

func TestConcurrentLoadAndInvalidate(t *testing.T) {
	store := mock.NewStudentStore()
	seedStudents(store, 1, 5)
	seedStudents(store, 2, 5)

	idx := NewIndex(store, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			classID := int64(n%2 + 1)
			for j := 0; j < 50; j++ {
				snap, err := idx.Load(context.Background(), classID)
				if err != nil {
					t.Errorf("Load: %v", err)
					return
				}
				// A snapshot is never torn: entries and names agree.
				if len(snap.Entries) != len(snap.Names) {
					t.Errorf("torn snapshot: %d entries, %d names", len(snap.Entries), len(snap.Names))
					return
				}
				if j%10 == 0 {
					idx.Invalidate(classID)
				}
			}
		}(i)
	}
	wg.Wait()
}
