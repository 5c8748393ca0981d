package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/detectops/contentgov/content"
)

// BucketItems is the JetStream KV bucket holding content items.
const BucketItems = "CONTENTGOV_ITEMS"

// NATSStore persists content items in a NATS JetStream KV bucket.
type NATSStore struct {
	items jetstream.KeyValue
}

// NewNATSStore creates a NATSStore with the given JetStream context,
// creating the KV bucket if it doesn't exist.
func NewNATSStore(ctx context.Context, js jetstream.JetStream) (*NATSStore, error) {
	items, err := getOrCreateBucket(ctx, js, BucketItems)
	if err != nil {
		return nil, fmt.Errorf("create items bucket: %w", err)
	}
	return &NATSStore{items: items}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Contentgov %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// Get retrieves an item by id.
func (s *NATSStore) Get(ctx context.Context, id string) (*content.ContentItem, error) {
	entry, err := s.items.Get(ctx, id)
	if err != nil {
		if isKeyNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}

	var item content.ContentItem
	if err := json.Unmarshal(entry.Value(), &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}

	return &item, nil
}

// Put writes an item, creating or replacing it.
func (s *NATSStore) Put(ctx context.Context, item *content.ContentItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	if _, err := s.items.Put(ctx, item.ID, data); err != nil {
		return fmt.Errorf("store item: %w", err)
	}

	return nil
}

// Create writes an item only if the id is not already taken.
func (s *NATSStore) Create(ctx context.Context, item *content.ContentItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	if _, err := s.items.Create(ctx, item.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, item.ID)
		}
		return fmt.Errorf("create item: %w", err)
	}

	return nil
}

// List returns all items matching the filter.
func (s *NATSStore) List(ctx context.Context, filter Filter) ([]*content.ContentItem, error) {
	keys, err := s.items.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list item keys: %w", err)
	}

	items := make([]*content.ContentItem, 0, len(keys))
	for _, key := range keys {
		entry, err := s.items.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var item content.ContentItem
		if err := json.Unmarshal(entry.Value(), &item); err != nil {
			continue
		}
		if filter.Matches(&item) {
			items = append(items, &item)
		}
	}

	return items, nil
}

// isKeyNotFound checks if an error indicates a key was not found.
func isKeyNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}
