package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/facerec"
)

// StudentRepository provides PostgreSQL-backed student storage.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `student_id, full_name, COALESCE(age, 0), COALESCE(address, ''),
	COALESCE(email, ''), embedding, dim, class_id, created_at`

// nullableVector scans a nullable pgvector column.
type nullableVector struct {
	vec   pgvector.Vector
	valid bool
}

func (n *nullableVector) Scan(src any) error {
	if src == nil {
		n.valid = false
		return nil
	}
	n.valid = true
	return n.vec.Scan(src)
}

// scanStudent scans one student row. The embedding column is nullable.
func scanStudent(scan func(dest ...any) error) (database.Student, error) {
	var s database.Student
	var vec nullableVector

	err := scan(&s.ID, &s.FullName, &s.Age, &s.Address, &s.Email, &vec, &s.Dim, &s.ClassID, &s.CreatedAt)
	if err != nil {
		return s, err
	}
	if vec.valid {
		s.Embedding = vec.vec.Slice()
	}
	return s, nil
}

func scanStudents(rows *sql.Rows) ([]database.Student, error) {
	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// ListByClass retrieves all students of a class, ordered by ID. An empty class
// yields an empty slice.
func (r *StudentRepository) ListByClass(ctx context.Context, classID int64) ([]database.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE class_id = $1 ORDER BY student_id`, studentColumns)

	rows, err := r.pool.Query(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("query students by class: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// ListWithEmbeddings retrieves every student that has an enrollment embedding.
func (r *StudentRepository) ListWithEmbeddings(ctx context.Context) ([]database.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE embedding IS NOT NULL ORDER BY student_id`, studentColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query students with embeddings: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// Get retrieves a student by ID.
func (r *StudentRepository) Get(ctx context.Context, id int64) (*database.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE student_id = $1`, studentColumns)

	s, err := scanStudent(r.pool.QueryRow(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return &s, nil
}

// Search finds students whose name matches the keyword diacritics-insensitively
// or whose email contains it. The SQL normalization mirrors
// facerec.NormalizePersonName (lowercase, unaccent, dashes to spaces).
func (r *StudentRepository) Search(ctx context.Context, keyword string) ([]database.Student, error) {
	normalized := facerec.NormalizePersonName(keyword)

	query := fmt.Sprintf(`
		SELECT %s FROM students
		WHERE LOWER(REPLACE(unaccent(full_name), '-', ' ')) LIKE '%%' || $1 || '%%'
		   OR LOWER(COALESCE(email, '')) LIKE '%%' || LOWER($2) || '%%'
		ORDER BY full_name
	`, studentColumns)

	rows, err := r.pool.Query(ctx, query, normalized, keyword)
	if err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// Create inserts a new student and returns the assigned ID.
func (r *StudentRepository) Create(ctx context.Context, s *database.Student) (int64, error) {
	query := `
		INSERT INTO students (full_name, age, address, email, embedding, dim, class_id)
		VALUES ($1, NULLIF($2, 0), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)
		RETURNING student_id, created_at
	`

	var vec any
	if len(s.Embedding) > 0 {
		vec = pgvector.NewVector(s.Embedding)
	}

	err := r.pool.QueryRow(ctx, query,
		s.FullName, s.Age, s.Address, s.Email, vec, len(s.Embedding), s.ClassID,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert student: %w", err)
	}
	return s.ID, nil
}

// Update replaces the mutable fields of a student. Re-enrollment writes a new
// embedding value wholesale; embeddings are never patched in place.
func (r *StudentRepository) Update(ctx context.Context, s *database.Student) error {
	query := `
		UPDATE students
		SET full_name = $1, age = NULLIF($2, 0), address = NULLIF($3, ''),
		    email = NULLIF($4, ''), embedding = $5, dim = $6, class_id = $7
		WHERE student_id = $8
	`

	var vec any
	if len(s.Embedding) > 0 {
		vec = pgvector.NewVector(s.Embedding)
	}

	result, err := r.pool.Exec(ctx, query,
		s.FullName, s.Age, s.Address, s.Email, vec, len(s.Embedding), s.ClassID, s.ID)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Delete removes a student and their attendance history.
func (r *StudentRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM attendance WHERE student_id = $1", id); err != nil {
		return fmt.Errorf("delete student attendance: %w", err)
	}

	result, err := r.pool.Exec(ctx, "DELETE FROM students WHERE student_id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete student rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}
