package facerec

import (
	"fmt"
	"sort"
)

// RosterEntry is one enrolled student embedding a probe is scored against.
// Normalized is the unit-norm copy prepared at roster load time; when nil the
// engine normalizes Embedding on the fly.
type RosterEntry struct {
	StudentID  int64
	Embedding  []float32
	Normalized []float32
}

// Candidate is a roster member whose similarity cleared the threshold.
type Candidate struct {
	StudentID  int64
	Similarity float64
}

// Match scores probe against every roster entry and returns all candidates with
// similarity >= threshold, ordered by descending similarity and ascending
// student ID. Several roster members may be accepted from a single probe, which
// supports group photos; callers wanting a single identity take the first
// candidate. Malformed roster entries (wrong dimension, degenerate embedding)
// are excluded from the result instead of failing the whole match. An empty
// result means no enrolled student matched and is not an error.
func Match(probe []float32, entries []RosterEntry, threshold float64) ([]Candidate, error) {
	p, err := Normalize(probe)
	if err != nil {
		return nil, fmt.Errorf("normalize probe: %w", err)
	}

	var candidates []Candidate
	for _, e := range entries {
		n := e.Normalized
		if n == nil {
			n, err = Normalize(e.Embedding)
			if err != nil {
				continue
			}
		}
		if len(n) != len(p) {
			continue
		}

		sim := dotProduct(p, n)
		if sim >= threshold {
			candidates = append(candidates, Candidate{StudentID: e.StudentID, Similarity: sim})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].StudentID < candidates[j].StudentID
	})

	return candidates, nil
}
