// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments; all state is lost on restart.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/stackpine/recordapi/storage"
)

// Store is an in-memory implementation of storage.UserStore and
// storage.RecordStore. Record ids come from a monotonically increasing
// counter, so ids are never reused after a delete.
type Store struct {
	mu sync.RWMutex

	usersByName map[string]*storage.User
	usersByID   map[int64]*storage.User

	records []storage.Record
	nextID  int64

	logger *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.UserStore   = (*Store)(nil)
	_ storage.RecordStore = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		usersByName: make(map[string]*storage.User),
		usersByID:   make(map[int64]*storage.User),
		logger:      slog.Default(),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SeedUser adds a user with a plaintext credential, hashing it with bcrypt
// before storing. The plaintext is discarded once hashed. Seeding happens at
// process start only; duplicates by id or username are rejected.
func (s *Store) SeedUser(id int64, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing credential for %q: %w", username, err)
	}
	return s.SeedUserHash(id, username, hash)
}

// SeedUserHash adds a user with an already-computed bcrypt hash.
func (s *Store) SeedUserHash(id int64, username string, passwordHash []byte) error {
	if id <= 0 {
		return fmt.Errorf("user id must be positive, got %d", id)
	}
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByID[id]; exists {
		return fmt.Errorf("%w: id %d", storage.ErrDuplicate, id)
	}
	if _, exists := s.usersByName[username]; exists {
		return fmt.Errorf("%w: username %q", storage.ErrDuplicate, username)
	}

	u := &storage.User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
	}
	s.usersByID[id] = u
	s.usersByName[username] = u

	s.logger.Debug("Seeded user", "user_id", id, "username", username)
	return nil
}

// SeedRecord appends a record during initial seeding, assigning the next id.
func (s *Store) SeedRecord(name string, age float64) storage.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(name, age)
}

// FindByUsername looks up a user by exact, case-sensitive username.
func (s *Store) FindByUsername(_ context.Context, username string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByName[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, storage.ErrNotFound)
	}
	return copyUser(u), nil
}

// FindByID looks up a user by id.
func (s *Store) FindByID(_ context.Context, id int64) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	return copyUser(u), nil
}

// UserCount returns the number of seeded users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.usersByID)
}

// List returns the full record collection in insertion order.
func (s *Store) List(_ context.Context) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Get returns the record with the given id.
func (s *Store) Get(_ context.Context, id int64) (storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return storage.Record{}, fmt.Errorf("record %d: %w", id, storage.ErrNotFound)
}

// Create appends a record and assigns the next id from the counter.
func (s *Store) Create(_ context.Context, name string, age float64) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.appendLocked(name, age)
	s.logger.Debug("Created record", "record_id", r.ID)
	return r, nil
}

// Replace overwrites the record with the given id in place, preserving the
// id and the record's position in the collection.
func (s *Store) Replace(_ context.Context, id int64, name string, age float64) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.records {
		if r.ID == id {
			s.records[i] = storage.Record{ID: id, Name: name, Age: age}
			return s.records[i], nil
		}
	}
	return storage.Record{}, fmt.Errorf("record %d: %w", id, storage.ErrNotFound)
}

// Delete removes the record with the given id, shifting later entries left.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.logger.Debug("Deleted record", "record_id", id)
			return nil
		}
	}
	return fmt.Errorf("record %d: %w", id, storage.ErrNotFound)
}

// RecordCount returns the current collection size.
func (s *Store) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// appendLocked assigns the next id and appends. Caller must hold mu.
func (s *Store) appendLocked(name string, age float64) storage.Record {
	s.nextID++
	r := storage.Record{ID: s.nextID, Name: name, Age: age}
	s.records = append(s.records, r)
	return r
}

func copyUser(u *storage.User) *storage.User {
	c := *u
	c.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return &c
}
