package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/detectops/contentgov/content"
)

// MemoryStore is an in-memory Store for tests and ephemeral use. It
// clones on both read and write, so callers never share item memory with
// the store and a concurrent reader can never observe a torn item.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*content.ContentItem
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*content.ContentItem)}
}

// Get retrieves an item by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return item.Clone(), nil
}

// Put writes an item, creating or replacing it.
func (s *MemoryStore) Put(ctx context.Context, item *content.ContentItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[item.ID] = item.Clone()
	return nil
}

// Create writes an item only if the id is not already taken.
func (s *MemoryStore) Create(ctx context.Context, item *content.ContentItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, item.ID)
	}
	s.items[item.ID] = item.Clone()
	return nil
}

// List returns all items matching the filter.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*content.ContentItem, 0, len(s.items))
	for _, item := range s.items {
		if filter.Matches(item) {
			items = append(items, item.Clone())
		}
	}
	return items, nil
}

// Len returns the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
