// Package catalog maintains the durable metadata catalog: an advisory,
// path-keyed copy of file records used for search. The filesystem remains
// the source of truth; catalog entries may go stale and catalog failures
// never block filesystem operations.
package catalog

import (
	"context"

	"github.com/storagepod/storagepod/internal/fsops"
)

// Store is the minimal CRUD contract the service requires of a metadata
// store. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the record stored under a root-relative path, or
	// fsops.ErrNotFound.
	Get(ctx context.Context, path string) (fsops.Record, error)

	// Put upserts a record keyed by its Path.
	Put(ctx context.Context, rec fsops.Record) error

	// Delete removes the record under path. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, path string) error

	// Search filters and sorts the catalog according to the query policy.
	Search(ctx context.Context, q Query) ([]fsops.Record, error)

	// Close releases underlying resources.
	Close() error
}
