package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tndang/rollcall/internal/database"
)

// ClassRepository provides PostgreSQL-backed class storage.
type ClassRepository struct {
	pool *Pool
}

// NewClassRepository creates a new PostgreSQL class repository.
func NewClassRepository(pool *Pool) *ClassRepository {
	return &ClassRepository{pool: pool}
}

// List retrieves all classes ordered by name.
func (r *ClassRepository) List(ctx context.Context) ([]database.Class, error) {
	rows, err := r.pool.Query(ctx, "SELECT class_id, class_name, teacher_id FROM classes ORDER BY class_name")
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	var classes []database.Class
	for rows.Next() {
		var c database.Class
		var teacherID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &teacherID); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		c.TeacherID = teacherID.Int64
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classes: %w", err)
	}
	return classes, nil
}

// Get retrieves a class by ID.
func (r *ClassRepository) Get(ctx context.Context, id int64) (*database.Class, error) {
	var c database.Class
	var teacherID sql.NullInt64
	err := r.pool.QueryRow(ctx,
		"SELECT class_id, class_name, teacher_id FROM classes WHERE class_id = $1", id,
	).Scan(&c.ID, &c.Name, &teacherID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query class: %w", err)
	}
	c.TeacherID = teacherID.Int64
	return &c, nil
}

// Create inserts a new class and returns the assigned ID. A zero
// TeacherID is stored as NULL so classes can exist without an owner.
func (r *ClassRepository) Create(ctx context.Context, c *database.Class) (int64, error) {
	teacherID := sql.NullInt64{Int64: c.TeacherID, Valid: c.TeacherID != 0}
	err := r.pool.QueryRow(ctx,
		"INSERT INTO classes (class_name, teacher_id) VALUES ($1, $2) RETURNING class_id",
		c.Name, teacherID,
	).Scan(&c.ID)
	if err != nil {
		return 0, fmt.Errorf("insert class: %w", err)
	}
	return c.ID, nil
}

// Delete removes a class. Fails while students are still enrolled.
func (r *ClassRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM classes WHERE class_id = $1", id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete class rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}
