// Package recognition wires the embedding, matching, and recording stages into
// the two operations the transport layer exposes.
package recognition

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tndang/rollcall/internal/attendance"
	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/embedder"
	"github.com/tndang/rollcall/internal/facerec"
	"github.com/tndang/rollcall/internal/roster"
)

// Match is one accepted roster member with its score.
type Match struct {
	StudentID  int64   `json:"student_id"`
	FullName   string  `json:"full_name"`
	Similarity float64 `json:"similarity"`
}

// Result is the outcome of one recognition call.
type Result struct {
	Matches []Match                    `json:"matches"`
	Events  []database.AttendanceEvent `json:"-"`
}

// Service runs the recognition pipeline: probe embedding, roster matching, and
// automatic attendance recording.
type Service struct {
	embedder  embedder.Embedder
	roster    *roster.Index
	recorder  *attendance.Recorder
	threshold float64
	dim       int
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a recognition service. dim is the embedding
// dimensionality of the face model; probes of any other length are rejected.
func NewService(e embedder.Embedder, idx *roster.Index, rec *attendance.Recorder, threshold float64, dim int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder:  e,
		roster:    idx,
		recorder:  rec,
		threshold: threshold,
		dim:       dim,
		logger:    logger,
		now:       time.Now,
	}
}

// Recognize embeds the probe image, matches it against the class roster, and
// records automatic attendance for every accepted candidate. A probe with no
// detectable face returns embedder.ErrNoFace; an empty match list with a nil
// error means no enrolled student cleared the threshold. Roster load failures
// propagate as errors so a broken store is never mistaken for an empty class.
func (s *Service) Recognize(ctx context.Context, classID int64, image []byte) (*Result, error) {
	probe, err := s.embedder.ComputeEmbedding(ctx, image)
	if err != nil {
		// ErrNoFace included: the matching engine is never invoked without a
		// valid probe vector.
		return nil, err
	}

	if s.dim > 0 && len(probe) != s.dim {
		return nil, fmt.Errorf("probe has %d dimensions, model expects %d: %w",
			len(probe), s.dim, facerec.ErrDimensionMismatch)
	}

	snap, err := s.roster.Load(ctx, classID)
	if err != nil {
		return nil, err
	}

	candidates, err := facerec.Match(probe, snap.Entries, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("match probe against class %d: %w", classID, err)
	}

	result := &Result{Matches: make([]Match, 0, len(candidates))}
	for _, c := range candidates {
		result.Matches = append(result.Matches, Match{
			StudentID:  c.StudentID,
			FullName:   snap.Names[c.StudentID],
			Similarity: c.Similarity,
		})
	}

	if len(candidates) == 0 {
		s.logger.Info("no roster match above threshold",
			zap.Int64("class_id", classID),
			zap.Int("roster_size", len(snap.Entries)))
		return result, nil
	}

	events, err := s.recorder.RecordAutomatic(ctx, classID, candidates, s.now().UTC())
	result.Events = events
	if err != nil {
		// Partial recording: accepted events are still returned.
		return result, fmt.Errorf("record attendance for class %d: %w", classID, err)
	}
	return result, nil
}

// MarkManual creates or overwrites a manual attendance event for today.
func (s *Service) MarkManual(ctx context.Context, classID, studentID int64, status database.AttendanceStatus) (*database.AttendanceEvent, error) {
	return s.recorder.RecordManual(ctx, classID, studentID, status, s.now().UTC())
}

// InvalidateRoster drops the cached roster for a class. Enrollment handlers
// call this after any change to the class membership.
func (s *Service) InvalidateRoster(classID int64) {
	s.roster.Invalidate(classID)
}
