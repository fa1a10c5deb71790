// Package mock provides in-memory implementations of the database store
// interfaces for handler and service tests.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/facerec"
)

// StudentStore is an in-memory database.StudentStore.
type StudentStore struct {
	mu       sync.RWMutex
	students map[int64]*database.Student
	nextID   int64

	// Error injection
	ListError   error
	GetError    error
	CreateError error
	UpdateError error
	DeleteError error
	SearchError error
}

// NewStudentStore creates an empty mock student store.
func NewStudentStore() *StudentStore {
	return &StudentStore{
		students: make(map[int64]*database.Student),
		nextID:   1,
	}
}

// AddStudent seeds a student, assigning an ID when missing.
func (m *StudentStore) AddStudent(s database.Student) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.nextID
	}
	if s.ID >= m.nextID {
		m.nextID = s.ID + 1
	}
	m.students[s.ID] = &s
	return s.ID
}

func (m *StudentStore) ListByClass(ctx context.Context, classID int64) ([]database.Student, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Student
	for _, s := range m.students {
		if s.ClassID == classID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *StudentStore) ListWithEmbeddings(ctx context.Context) ([]database.Student, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Student
	for _, s := range m.students {
		if len(s.Embedding) > 0 {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *StudentStore) Get(ctx context.Context, id int64) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *StudentStore) Search(ctx context.Context, keyword string) ([]database.Student, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	normalized := facerec.NormalizePersonName(keyword)
	var out []database.Student
	for _, s := range m.students {
		if strings.Contains(facerec.NormalizePersonName(s.FullName), normalized) ||
			strings.Contains(strings.ToLower(s.Email), strings.ToLower(keyword)) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *StudentStore) Create(ctx context.Context, s *database.Student) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = m.nextID
	m.nextID++
	s.CreatedAt = time.Now()
	copied := *s
	m.students[s.ID] = &copied
	return s.ID, nil
}

func (m *StudentStore) Update(ctx context.Context, s *database.Student) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[s.ID]; !ok {
		return database.ErrNotFound
	}
	copied := *s
	m.students[s.ID] = &copied
	return nil
}

func (m *StudentStore) Delete(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.students, id)
	return nil
}

// AttendanceStore is an in-memory database.AttendanceStore with the same
// per-day dedup semantics as the PostgreSQL partial unique index.
type AttendanceStore struct {
	mu     sync.Mutex
	events []database.AttendanceEvent
	nextID int64

	// Error injection
	InsertError error
	ExistsError error
	UpsertError error
	ListError   error
}

// NewAttendanceStore creates an empty mock attendance store.
func NewAttendanceStore() *AttendanceStore {
	return &AttendanceStore{nextID: 1}
}

// Events returns a copy of every stored event.
func (m *AttendanceStore) Events() []database.AttendanceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.AttendanceEvent, len(m.events))
	copy(out, m.events)
	return out
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (m *AttendanceStore) InsertAutomatic(ctx context.Context, ev *database.AttendanceEvent) (bool, error) {
	if m.InsertError != nil {
		return false, m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.events {
		if e.Source == database.SourceAuto && e.ClassID == ev.ClassID &&
			e.StudentID == ev.StudentID && sameUTCDay(e.RecordedAt, ev.RecordedAt) {
			return false, nil
		}
	}

	ev.ID = m.nextID
	m.nextID++
	ev.Source = database.SourceAuto
	m.events = append(m.events, *ev)
	return true, nil
}

func (m *AttendanceStore) ExistsAutomaticOn(ctx context.Context, classID, studentID int64, day time.Time) (bool, error) {
	if m.ExistsError != nil {
		return false, m.ExistsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.events {
		if e.Source == database.SourceAuto && e.ClassID == classID &&
			e.StudentID == studentID && sameUTCDay(e.RecordedAt, day) {
			return true, nil
		}
	}
	return false, nil
}

func (m *AttendanceStore) UpsertManual(ctx context.Context, ev *database.AttendanceEvent) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.Source = database.SourceManual
	for i, e := range m.events {
		if e.Source == database.SourceManual && e.ClassID == ev.ClassID &&
			e.StudentID == ev.StudentID && sameUTCDay(e.RecordedAt, ev.RecordedAt) {
			ev.ID = e.ID
			m.events[i] = *ev
			return nil
		}
	}

	ev.ID = m.nextID
	m.nextID++
	m.events = append(m.events, *ev)
	return nil
}

func (m *AttendanceStore) ListByClassDay(ctx context.Context, classID int64, day time.Time) ([]database.AttendanceEvent, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []database.AttendanceEvent
	for _, e := range m.events {
		if e.ClassID == classID && sameUTCDay(e.RecordedAt, day) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ClassStore is an in-memory database.ClassStore.
type ClassStore struct {
	mu      sync.RWMutex
	classes map[int64]*database.Class
	nextID  int64

	// Error injection
	ListError   error
	GetError    error
	CreateError error
	DeleteError error
}

// NewClassStore creates an empty mock class store.
func NewClassStore() *ClassStore {
	return &ClassStore{
		classes: make(map[int64]*database.Class),
		nextID:  1,
	}
}

// AddClass seeds a class, assigning an ID when missing.
func (m *ClassStore) AddClass(c database.Class) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.nextID
	}
	if c.ID >= m.nextID {
		m.nextID = c.ID + 1
	}
	m.classes[c.ID] = &c
	return c.ID
}

func (m *ClassStore) List(ctx context.Context) ([]database.Class, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Class
	for _, c := range m.classes {
		out = append(out, *c)
	}
	return out, nil
}

func (m *ClassStore) Get(ctx context.Context, id int64) (*database.Class, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.classes[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *ClassStore) Create(ctx context.Context, c *database.Class) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = m.nextID
	m.nextID++
	copied := *c
	m.classes[c.ID] = &copied
	return c.ID, nil
}

func (m *ClassStore) Delete(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.classes[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.classes, id)
	return nil
}

// UserStore is an in-memory database.UserStore.
type UserStore struct {
	mu     sync.RWMutex
	users  map[string]*database.User
	nextID int64

	// Error injection
	GetError    error
	CreateError error
}

// NewUserStore creates an empty mock user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:  make(map[string]*database.User),
		nextID: 1,
	}
}

func (m *UserStore) GetByUsername(ctx context.Context, username string) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *UserStore) Create(ctx context.Context, u *database.User) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u.ID = m.nextID
	m.nextID++
	u.CreatedAt = time.Now()
	copied := *u
	m.users[u.Username] = &copied
	return u.ID, nil
}
