package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tndang/rollcall/internal/database"
)

// UserRepository provides PostgreSQL-backed login accounts.
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*database.User, error) {
	query := `
		SELECT user_id, username, email, password_hash, role, COALESCE(full_name, ''), is_active, created_at
		FROM users
		WHERE username = $1
	`

	var u database.User
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.FullName, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// Create inserts a new user and returns the assigned ID.
func (r *UserRepository) Create(ctx context.Context, u *database.User) (int64, error) {
	query := `
		INSERT INTO users (username, email, password_hash, role, full_name, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING user_id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		u.Username, u.Email, u.PasswordHash, u.Role, u.FullName, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return u.ID, nil
}
