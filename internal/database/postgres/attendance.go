package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tndang/rollcall/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage. The
// per-day dedup for automatic events lives in the attendance_auto_daily_unique
// partial index, so the insert is the serialization point and no engine-side
// locking is needed.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// InsertAutomatic inserts an automatic event unless one already exists for the
// same (class, student, UTC day). Returns false on the duplicate skip.
func (r *AttendanceRepository) InsertAutomatic(ctx context.Context, ev *database.AttendanceEvent) (bool, error) {
	query := `
		INSERT INTO attendance (class_id, student_id, status, source, similarity, recorded_at)
		VALUES ($1, $2, $3, 'auto', $4, $5)
		ON CONFLICT (class_id, student_id, ((recorded_at AT TIME ZONE 'UTC')::date))
			WHERE source = 'auto'
		DO NOTHING
		RETURNING attendance_id
	`

	err := r.pool.QueryRow(ctx, query,
		ev.ClassID, ev.StudentID, ev.Status, ev.Similarity, ev.RecordedAt,
	).Scan(&ev.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict: today's automatic event already exists.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert automatic attendance: %w", err)
	}

	ev.Source = database.SourceAuto
	return true, nil
}

// ExistsAutomaticOn reports whether an automatic event exists for the student
// in the class on the given UTC day.
func (r *AttendanceRepository) ExistsAutomaticOn(ctx context.Context, classID, studentID int64, day time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM attendance
			WHERE class_id = $1 AND student_id = $2 AND source = 'auto'
			  AND (recorded_at AT TIME ZONE 'UTC')::date = $3::date
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, classID, studentID, day.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check automatic attendance exists: %w", err)
	}
	return exists, nil
}

// UpsertManual creates or overwrites the day's manual event for the student.
func (r *AttendanceRepository) UpsertManual(ctx context.Context, ev *database.AttendanceEvent) error {
	query := `
		INSERT INTO attendance (class_id, student_id, status, source, similarity, recorded_at)
		VALUES ($1, $2, $3, 'manual', 0, $4)
		ON CONFLICT (class_id, student_id, ((recorded_at AT TIME ZONE 'UTC')::date))
			WHERE source = 'manual'
		DO UPDATE SET status = EXCLUDED.status, recorded_at = EXCLUDED.recorded_at
		RETURNING attendance_id
	`

	err := r.pool.QueryRow(ctx, query,
		ev.ClassID, ev.StudentID, ev.Status, ev.RecordedAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("upsert manual attendance: %w", err)
	}

	ev.Source = database.SourceManual
	return nil
}

// ListByClassDay retrieves every event of a class on the given UTC day.
func (r *AttendanceRepository) ListByClassDay(ctx context.Context, classID int64, day time.Time) ([]database.AttendanceEvent, error) {
	query := `
		SELECT attendance_id, class_id, student_id, status, source, similarity, recorded_at
		FROM attendance
		WHERE class_id = $1 AND (recorded_at AT TIME ZONE 'UTC')::date = $2::date
		ORDER BY recorded_at, attendance_id
	`

	rows, err := r.pool.Query(ctx, query, classID, day.UTC())
	if err != nil {
		return nil, fmt.Errorf("query attendance by class and day: %w", err)
	}
	defer rows.Close()

	var events []database.AttendanceEvent
	for rows.Next() {
		var ev database.AttendanceEvent
		if err := rows.Scan(&ev.ID, &ev.ClassID, &ev.StudentID, &ev.Status, &ev.Source, &ev.Similarity, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance events: %w", err)
	}
	return events, nil
}
