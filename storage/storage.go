// Package storage defines interfaces for the user credential store and the
// record collection. The service ships with an in-memory implementation under
// storage/memory; the interfaces allow swapping in a persistent backend.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested user or record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when seeding would violate the uniqueness
// invariant on user ids or usernames.
var ErrDuplicate = errors.New("duplicate user")

// User is an authentication principal. The user set is loaded once at process
// start and is immutable afterwards: there is no registration endpoint.
type User struct {
	ID       int64
	Username string

	// PasswordHash is the bcrypt hash of the user's credential. The
	// plaintext is never retained after seeding.
	PasswordHash []byte
}

// Record is a single entry in the resource collection.
type Record struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Age  float64 `json:"age"`
}

// UserStore provides read-only access to the seeded user set.
// All methods accept context.Context for tracing and cancellation.
type UserStore interface {
	// FindByUsername looks up a user by exact, case-sensitive username.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByID looks up a user by id.
	FindByID(ctx context.Context, id int64) (*User, error)
}

// RecordStore is an ordered collection of records. Ordering is insertion
// order; Delete shifts later entries left rather than leaving tombstones.
// All methods accept context.Context for tracing and cancellation.
type RecordStore interface {
	// List returns the full collection in insertion order.
	List(ctx context.Context) ([]Record, error)

	// Get returns the record with the given id.
	Get(ctx context.Context, id int64) (Record, error)

	// Create appends a record, assigning the next id.
	Create(ctx context.Context, name string, age float64) (Record, error)

	// Replace overwrites the record with the given id in place. The id is
	// preserved regardless of the supplied fields.
	Replace(ctx context.Context, id int64, name string, age float64) (Record, error)

	// Delete removes the record with the given id.
	Delete(ctx context.Context, id int64) error
}
