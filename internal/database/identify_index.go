package database

import (
	"errors"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// IdentifyIndexMaxNeighbors is the HNSW M parameter for the student face index.
const IdentifyIndexMaxNeighbors = 16

// IdentifyIndex is an in-memory HNSW graph over every enrolled student
// embedding, used for school-wide "whose face is this" lookups that are not
// scoped to a single class roster.
type IdentifyIndex struct {
	graph       *hnsw.Graph[int64]
	idToStudent map[int64]*Student
	mu          sync.RWMutex
}

// NewIdentifyIndex creates a new empty index.
func NewIdentifyIndex() *IdentifyIndex {
	return &IdentifyIndex{
		idToStudent: make(map[int64]*Student),
	}
}

// Build replaces the index contents from a slice of students. Students without
// an embedding are skipped.
func (idx *IdentifyIndex) Build(students []Student) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(students) == 0 {
		idx.graph = nil
		idx.idToStudent = make(map[int64]*Student)
		return nil
	}

	g := hnsw.NewGraph[int64]()
	g.M = IdentifyIndexMaxNeighbors
	g.Ml = 1.0 / float64(IdentifyIndexMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	idx.idToStudent = make(map[int64]*Student, len(students))

	for i := range students {
		s := &students[i]
		if len(s.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(s.ID, s.Embedding))
		idx.idToStudent[s.ID] = s
	}

	idx.graph = g
	return nil
}

// Search finds the k nearest students to the query embedding. Returns student
// IDs and cosine similarities (1 - cosine distance), best first.
func (idx *IdentifyIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil {
		return nil, nil, errors.New("identify index not initialized")
	}

	neighbors := idx.graph.Search(query, k)

	ids := make([]int64, len(neighbors))
	similarities := make([]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
		similarities[i] = 1 - cosineDistance(query, n.Value)
	}
	return ids, similarities, nil
}

// Student returns the indexed student for a given ID, or nil.
func (idx *IdentifyIndex) Student(id int64) *Student {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.idToStudent[id]
}

// Add inserts or replaces a single student in the index.
func (idx *IdentifyIndex) Add(s *Student) {
	if s == nil || len(s.Embedding) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.graph == nil {
		g := hnsw.NewGraph[int64]()
		g.M = IdentifyIndexMaxNeighbors
		g.Ml = 1.0 / float64(IdentifyIndexMaxNeighbors)
		g.Distance = hnsw.CosineDistance
		idx.graph = g
	}

	idx.graph.Add(hnsw.MakeNode(s.ID, s.Embedding))
	idx.idToStudent[s.ID] = s
}

// Remove deletes a student from the index. A no-op when absent.
func (idx *IdentifyIndex) Remove(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.graph != nil {
		idx.graph.Delete(id)
	}
	delete(idx.idToStudent, id)
}

// Count returns the number of indexed students.
func (idx *IdentifyIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idToStudent)
}

// cosineDistance computes the cosine distance between two vectors, 0 for
// identical directions up to 2 for opposite. Invalid input maps to the
// maximum distance.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return 1 - sim
}
