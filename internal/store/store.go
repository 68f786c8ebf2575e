// Package store persists items. Every backend validates through the item
// package, so the same record is accepted or rejected regardless of engine.
package store

import (
	"context"

	"itemsvc/internal/item"
)

// Store is the item collection used by the HTTP layer.
type Store interface {
	// List returns one page of items matching q and the number of matching records.
	List(ctx context.Context, q item.Query) ([]item.Item, int, error)

	// Get returns the item with the given id or item.ErrNotFound.
	Get(ctx context.Context, id string) (item.Item, error)

	// Create validates f and persists a new item.
	Create(ctx context.Context, f item.Fields) (item.Item, error)

	// Update applies the supplied fields to an existing item.
	Update(ctx context.Context, id string, f item.Fields) (item.Item, error)

	// Delete removes an item and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)

	// BulkCreate persists every entry of fs or none of them.
	BulkCreate(ctx context.Context, fs []item.Fields) ([]item.Item, error)

	// Ping performs a trivial read against the backing store.
	Ping(ctx context.Context) error

	Close() error
}
