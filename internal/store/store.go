// Package store provides the local record store for clip records.
//
// The reconciliation engine talks to the store only through the Store
// interface. The production implementation is an embedded SQLite
// database (see sqlite.go); tests substitute fakes to exercise failure
// paths.
package store

import (
	"context"
	"errors"

	"github.com/clipd-io/clipd/internal/clip"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("clip not found")

// Store is the persistence boundary contract.
//
// Every call can fail (storage quota, corruption). Callers must treat
// a failed write as "nothing happened": the engine only updates its
// canonical in-memory list after the store call returns nil.
//
// Put is an upsert keyed by Clip.ID. Delete of an absent id is a no-op,
// not an error (idempotent, matching remote delete semantics).
type Store interface {
	// Get retrieves a single record by id.
	// Returns ErrNotFound if no record exists.
	Get(ctx context.Context, id string) (*clip.Clip, error)

	// GetAll returns every record in the namespace, in no particular order.
	GetAll(ctx context.Context) ([]*clip.Clip, error)

	// Put inserts or replaces a record by id.
	Put(ctx context.Context, c *clip.Clip) error

	// Delete removes a record by id. Deleting an absent id returns nil.
	Delete(ctx context.Context, id string) error

	// GetByType returns all records with the given type tag.
	GetByType(ctx context.Context, typ string) ([]*clip.Clip, error)

	// GetPinned returns all pinned records.
	GetPinned(ctx context.Context) ([]*clip.Clip, error)

	// Close releases underlying resources.
	Close() error
}
