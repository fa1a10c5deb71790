// Package roster maintains per-class in-memory views of enrolled student
// embeddings for the matching engine.
package roster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/facerec"
)

// Snapshot is an immutable view of one class roster. Entries carry
// pre-normalized embeddings so the hot matching loop is a plain dot product;
// entries whose stored embedding is degenerate keep a nil Normalized copy and
// are excluded by the engine.
type Snapshot struct {
	ClassID  int64
	Entries  []facerec.RosterEntry
	Names    map[int64]string
	LoadedAt time.Time
}

// Index caches class rosters loaded from the student store. The cache is an
// immutable map swapped through an atomic pointer: readers pick up whichever
// snapshot is current without locking, and can never observe a torn roster.
// Writes (load misses, invalidation) serialize on a mutex and publish a fresh
// map copy.
type Index struct {
	store database.StudentStore
	ttl   time.Duration

	cache atomic.Pointer[map[int64]*Snapshot]
	mu    sync.Mutex // serializes cache publication, not reads
}

// NewIndex creates a roster index over the given store. A zero ttl disables
// caching entirely and every Load hits the store.
func NewIndex(store database.StudentStore, ttl time.Duration) *Index {
	idx := &Index{store: store, ttl: ttl}
	empty := make(map[int64]*Snapshot)
	idx.cache.Store(&empty)
	return idx
}

// Load returns the roster snapshot for a class, fetching from the store on a
// cache miss or after the TTL has lapsed. An empty class is a valid empty
// snapshot; a store failure is returned as-is so callers fail closed instead
// of matching against a partial roster.
func (idx *Index) Load(ctx context.Context, classID int64) (*Snapshot, error) {
	if idx.ttl > 0 {
		if snap := idx.lookup(classID); snap != nil {
			return snap, nil
		}
	}

	students, err := idx.store.ListByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("load roster for class %d: %w", classID, err)
	}

	snap := buildSnapshot(classID, students)
	if idx.ttl > 0 {
		idx.publish(snap)
	}
	return snap, nil
}

// Invalidate drops any cached roster for the class so the next Load refetches.
// Called by the enrollment workflow whenever a student is added, removed, or
// re-enrolled.
func (idx *Index) Invalidate(classID int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := *idx.cache.Load()
	if _, ok := current[classID]; !ok {
		return
	}

	next := make(map[int64]*Snapshot, len(current))
	for k, v := range current {
		if k != classID {
			next[k] = v
		}
	}
	idx.cache.Store(&next)
}

// InvalidateAll drops every cached roster.
func (idx *Index) InvalidateAll() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	empty := make(map[int64]*Snapshot)
	idx.cache.Store(&empty)
}

func (idx *Index) lookup(classID int64) *Snapshot {
	snap, ok := (*idx.cache.Load())[classID]
	if !ok {
		return nil
	}
	if time.Since(snap.LoadedAt) > idx.ttl {
		return nil
	}
	return snap
}

func (idx *Index) publish(snap *Snapshot) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := *idx.cache.Load()
	next := make(map[int64]*Snapshot, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[snap.ClassID] = snap
	idx.cache.Store(&next)
}

func buildSnapshot(classID int64, students []database.Student) *Snapshot {
	snap := &Snapshot{
		ClassID:  classID,
		Names:    make(map[int64]string, len(students)),
		LoadedAt: time.Now(),
	}

	for _, s := range students {
		if len(s.Embedding) == 0 {
			// Not yet enrolled with a photo; nothing to match against.
			continue
		}
		entry := facerec.RosterEntry{StudentID: s.ID, Embedding: s.Embedding}
		if normalized, err := facerec.Normalize(s.Embedding); err == nil {
			entry.Normalized = normalized
		}
		snap.Entries = append(snap.Entries, entry)
		snap.Names[s.ID] = s.FullName
	}
	return snap
}
