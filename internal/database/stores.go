package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// StudentStore provides student persistence. ListByClass is the roster source
// for the matching engine; an empty class returns an empty slice, not an error.
type StudentStore interface {
	ListByClass(ctx context.Context, classID int64) ([]Student, error)
	ListWithEmbeddings(ctx context.Context) ([]Student, error)
	Get(ctx context.Context, id int64) (*Student, error)
	Search(ctx context.Context, keyword string) ([]Student, error)
	Create(ctx context.Context, s *Student) (int64, error)
	Update(ctx context.Context, s *Student) error
	Delete(ctx context.Context, id int64) error
}

// AttendanceStore persists attendance events.
type AttendanceStore interface {
	// InsertAutomatic inserts an automatic event unless one already exists for
	// the same (class, student, UTC day). Returns false on the duplicate skip.
	// The check-then-insert is atomic in the backend, so it remains correct
	// under concurrent recognition calls and across process instances.
	InsertAutomatic(ctx context.Context, ev *AttendanceEvent) (bool, error)

	// ExistsAutomaticOn reports whether an automatic event exists for the
	// student in the class on the given UTC day.
	ExistsAutomaticOn(ctx context.Context, classID, studentID int64, day time.Time) (bool, error)

	// UpsertManual creates or overwrites the day's manual event, bypassing the
	// automatic dedup rule.
	UpsertManual(ctx context.Context, ev *AttendanceEvent) error

	ListByClassDay(ctx context.Context, classID int64, day time.Time) ([]AttendanceEvent, error)
}

// ClassStore provides class persistence.
type ClassStore interface {
	List(ctx context.Context) ([]Class, error)
	Get(ctx context.Context, id int64) (*Class, error)
	Create(ctx context.Context, c *Class) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// UserStore provides login accounts.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, u *User) (int64, error)
}
