package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tndang/rollcall/internal/database"
)

// TeacherRepository provides PostgreSQL-backed teacher storage.
type TeacherRepository struct {
	pool *Pool
}

// NewTeacherRepository creates a new PostgreSQL teacher repository.
func NewTeacherRepository(pool *Pool) *TeacherRepository {
	return &TeacherRepository{pool: pool}
}

// List retrieves all teachers ordered by name.
func (r *TeacherRepository) List(ctx context.Context) ([]database.Teacher, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT teacher_id, full_name, COALESCE(email, ''), COALESCE(phone, '') FROM teachers ORDER BY full_name")
	if err != nil {
		return nil, fmt.Errorf("query teachers: %w", err)
	}
	defer rows.Close()

	var teachers []database.Teacher
	for rows.Next() {
		var t database.Teacher
		if err := rows.Scan(&t.ID, &t.FullName, &t.Email, &t.Phone); err != nil {
			return nil, fmt.Errorf("scan teacher: %w", err)
		}
		teachers = append(teachers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teachers: %w", err)
	}
	return teachers, nil
}

// Get retrieves a teacher by ID.
func (r *TeacherRepository) Get(ctx context.Context, id int64) (*database.Teacher, error) {
	var t database.Teacher
	err := r.pool.QueryRow(ctx,
		"SELECT teacher_id, full_name, COALESCE(email, ''), COALESCE(phone, '') FROM teachers WHERE teacher_id = $1", id,
	).Scan(&t.ID, &t.FullName, &t.Email, &t.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query teacher: %w", err)
	}
	return &t, nil
}

// Create inserts a new teacher and returns the assigned ID.
func (r *TeacherRepository) Create(ctx context.Context, t *database.Teacher) (int64, error) {
	err := r.pool.QueryRow(ctx,
		"INSERT INTO teachers (full_name, email, phone) VALUES ($1, NULLIF($2, ''), NULLIF($3, '')) RETURNING teacher_id",
		t.FullName, t.Email, t.Phone,
	).Scan(&t.ID)
	if err != nil {
		return 0, fmt.Errorf("insert teacher: %w", err)
	}
	return t.ID, nil
}
