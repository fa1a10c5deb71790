// Package facerec implements the face-matching core: embedding vector math
// and the roster matching engine shared by the CLI and web handlers.
package facerec

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateVector is returned for zero-norm or non-finite embeddings.
// Callers must not score a degenerate vector against a roster.
var ErrDegenerateVector = errors.New("degenerate embedding vector")

// ErrDimensionMismatch is returned when two embeddings have different lengths.
// Mismatched vectors are never truncated or padded.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Normalize returns v scaled to unit L2 norm.
func Normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrDegenerateVector
	}

	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}

	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrDegenerateVector
	}

	inv := 1 / norm
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// The result is clamped to [-1, 1] to absorb floating point error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: len(a)=%d len(b)=%d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}

	if normA == 0 || normB == 0 {
		return 0, ErrDegenerateVector
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, ErrDegenerateVector
	}
	return clamp(sim), nil
}

// dotProduct assumes both vectors are already unit-normalized and equal length.
func dotProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return clamp(dot)
}

func clamp(sim float64) float64 {
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}
