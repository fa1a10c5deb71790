// Package attendance turns accepted match candidates into durable attendance
// events.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/facerec"
)

// Recorder persists attendance events. It does not retry; storage errors
// propagate to the caller's transport layer, which applies its own policy.
type Recorder struct {
	store  database.AttendanceStore
	logger *zap.Logger
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store database.AttendanceStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// RecordAutomatic persists a present event for each candidate unless the
// student already has an automatic event for the class on the UTC calendar day
// of at. Duplicates are silent skips, not errors. Each candidate is processed
// independently: one failed write never blocks the rest, and the per-candidate
// errors come back joined alongside the accepted events.
func (r *Recorder) RecordAutomatic(ctx context.Context, classID int64, candidates []facerec.Candidate, at time.Time) ([]database.AttendanceEvent, error) {
	var accepted []database.AttendanceEvent
	var errs []error

	for _, c := range candidates {
		ev := &database.AttendanceEvent{
			ClassID:    classID,
			StudentID:  c.StudentID,
			Status:     database.StatusPresent,
			Source:     database.SourceAuto,
			Similarity: c.Similarity,
			RecordedAt: at,
		}

		inserted, err := r.store.InsertAutomatic(ctx, ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("record attendance for student %d: %w", c.StudentID, err))
			continue
		}
		if !inserted {
			r.logger.Debug("attendance already recorded today",
				zap.Int64("class_id", classID),
				zap.Int64("student_id", c.StudentID))
			continue
		}

		r.logger.Info("attendance recorded",
			zap.Int64("class_id", classID),
			zap.Int64("student_id", c.StudentID),
			zap.Float64("similarity", c.Similarity))
		accepted = append(accepted, *ev)
	}

	return accepted, errors.Join(errs...)
}

// RecordManual creates or overwrites the day's manual event for the student,
// bypassing the automatic per-day dedup rule.
func (r *Recorder) RecordManual(ctx context.Context, classID, studentID int64, status database.AttendanceStatus, at time.Time) (*database.AttendanceEvent, error) {
	if !database.ValidStatus(status) {
		return nil, fmt.Errorf("invalid attendance status %q", status)
	}

	ev := &database.AttendanceEvent{
		ClassID:    classID,
		StudentID:  studentID,
		Status:     status,
		Source:     database.SourceManual,
		RecordedAt: at,
	}
	if err := r.store.UpsertManual(ctx, ev); err != nil {
		return nil, fmt.Errorf("record manual attendance for student %d: %w", studentID, err)
	}

	r.logger.Info("manual attendance recorded",
		zap.Int64("class_id", classID),
		zap.Int64("student_id", studentID),
		zap.String("status", string(status)))
	return ev, nil
}
