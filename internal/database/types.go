package database

import (
	"time"
)

// Student is an enrolled student with an optional face embedding.
// Embedding is nil until an enrollment photo has been processed.
type Student struct {
	ID        int64
	FullName  string
	Age       int
	Address   string
	Email     string
	ClassID   int64
	Embedding []float32
	Dim       int
	CreatedAt time.Time
}

// Class groups students under a teacher.
type Class struct {
	ID        int64
	Name      string
	TeacherID int64
}

// Teacher owns one or more classes.
type Teacher struct {
	ID       int64
	FullName string
	Email    string
	Phone    string
}

// User is a login account for the web UI.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	FullName     string
	IsActive     bool
	CreatedAt    time.Time
}

// AttendanceStatus is the recorded state of a student for a class day.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusManual  AttendanceStatus = "manual"
)

// ValidStatus reports whether s is a recognized attendance status.
func ValidStatus(s AttendanceStatus) bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusManual:
		return true
	}
	return false
}

// AttendanceSource distinguishes recognition-created events from human ones.
type AttendanceSource string

const (
	SourceAuto   AttendanceSource = "auto"
	SourceManual AttendanceSource = "manual"
)

// AttendanceEvent is one attendance row. Automatic events are append-only and
// deduplicated per (class, student, UTC day); manual events may overwrite the
// day's manual row.
type AttendanceEvent struct {
	ID         int64
	ClassID    int64
	StudentID  int64
	Status     AttendanceStatus
	Source     AttendanceSource
	Similarity float64
	RecordedAt time.Time
}
