// Package storage provides ContentItem persistence behind a small
// key-value interface. Three backends are available: NATS JetStream KV
// for service deployments, Badger for embedded single-node use, and an
// in-memory store for tests.
package storage

import (
	"context"

	"github.com/detectops/contentgov/content"
)

// Filter narrows List results. Zero-value fields match everything.
type Filter struct {
	ContentType content.ContentType
	Status      content.Status
	Phase       content.Phase
}

// Matches reports whether the item satisfies every set filter field.
func (f Filter) Matches(item *content.ContentItem) bool {
	if f.ContentType != "" && item.ContentType != f.ContentType {
		return false
	}
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.Phase != "" && item.DDLCPhase != f.Phase {
		return false
	}
	return true
}

// Store is the key-value persistence contract the engine operates
// against. Implementations must return deep copies from Get and List so
// callers can mutate results freely, and must return ErrNotFound when an
// id does not resolve.
type Store interface {
	// Get returns the item with the given id.
	Get(ctx context.Context, id string) (*content.ContentItem, error)

	// Put writes the item, creating or replacing it.
	Put(ctx context.Context, item *content.ContentItem) error

	// Create writes the item only if its id is not already present.
	Create(ctx context.Context, item *content.ContentItem) error

	// List returns all items matching the filter.
	List(ctx context.Context, filter Filter) ([]*content.ContentItem, error)
}
