package facerec

import (
	"errors"
	"math"
	"testing"
)

// testRoster builds five distinct, roughly orthogonal embeddings.
func testRoster(dim int) []RosterEntry {
	entries := make([]RosterEntry, 5)
	for i := range entries {
		emb := make([]float32, dim)
		emb[i] = 1
		emb[dim-1-i] = 0.1
		entries[i] = RosterEntry{StudentID: int64(i + 1), Embedding: emb}
	}
	return entries
}

func TestMatchExactProbeRankedFirst(t *testing.T) {
	roster := testRoster(16)
	probe := roster[2].Embedding

	candidates, err := Match(probe, roster, 0.70)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if candidates[0].StudentID != roster[2].StudentID {
		t.Errorf("expected student %d first, got %d", roster[2].StudentID, candidates[0].StudentID)
	}
	if math.Abs(candidates[0].Similarity-1) > 1e-6 {
		t.Errorf("expected similarity ~1, got %v", candidates[0].Similarity)
	}
}

func TestMatchNoCandidateAboveThreshold(t *testing.T) {
	roster := testRoster(16)
	probe := make([]float32, 16)
	for i := range probe {
		// Equal weight everywhere keeps similarity to every entry well below 0.70.
		probe[i] = 1
	}

	candidates, err := Match(probe, roster, 0.70)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected empty result, got %d candidates", len(candidates))
	}
}

func TestMatchEmptyRoster(t *testing.T) {
	probe := []float32{1, 0, 0}
	candidates, err := Match(probe, nil, 0.70)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected empty result for empty roster, got %d", len(candidates))
	}
}

func TestMatchDegenerateProbe(t *testing.T) {
	roster := testRoster(16)
	if _, err := Match(make([]float32, 16), roster, 0.70); !errors.Is(err, ErrDegenerateVector) {
		t.Errorf("expected ErrDegenerateVector for zero probe, got %v", err)
	}
}

func TestMatchExcludesMalformedEntries(t *testing.T) {
	probe := make([]float32, 512)
	probe[0] = 1

	good := make([]float32, 512)
	good[0] = 1
	wrongDim := make([]float32, 128)
	wrongDim[0] = 1

	roster := []RosterEntry{
		{StudentID: 1, Embedding: wrongDim},
		{StudentID: 2, Embedding: good},
		{StudentID: 3, Embedding: make([]float32, 512)}, // zero, degenerate
	}

	candidates, err := Match(probe, roster, 0.70)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].StudentID != 2 {
		t.Fatalf("expected only student 2, got %+v", candidates)
	}
}

func TestMatchMultipleAcceptedOrdered(t *testing.T) {
	// Two entries identical to the probe to force a tie, one weaker match.
	probe := []float32{1, 0.2, 0}
	base := []float32{1, 0.2, 0}
	weaker := []float32{1, 0.9, 0}

	roster := []RosterEntry{
		{StudentID: 7, Embedding: base},
		{StudentID: 3, Embedding: base},
		{StudentID: 1, Embedding: weaker},
	}

	candidates, err := Match(probe, roster, 0.70)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	// Tie between 3 and 7 breaks by ascending student ID.
	if candidates[0].StudentID != 3 || candidates[1].StudentID != 7 {
		t.Errorf("expected tie order [3 7], got [%d %d]", candidates[0].StudentID, candidates[1].StudentID)
	}
	if candidates[2].StudentID != 1 {
		t.Errorf("expected weaker match last, got %d", candidates[2].StudentID)
	}
	if candidates[2].Similarity >= candidates[0].Similarity {
		t.Errorf("expected descending similarity, got %+v", candidates)
	}
}

func TestMatchUsesPrenormalizedCopy(t *testing.T) {
	probe := []float32{0, 1, 0}
	normalized := []float32{0, 1, 0}

	// Embedding deliberately disagrees with Normalized; the engine must prefer
	// the prepared copy.
	roster := []RosterEntry{
		{StudentID: 1, Embedding: []float32{1, 0, 0}, Normalized: normalized},
	}

	candidates, err := Match(probe, roster, 0.70)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].StudentID != 1 {
		t.Fatalf("expected student 1 via pre-normalized embedding, got %+v", candidates)
	}
}
