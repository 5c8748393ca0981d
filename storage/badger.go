package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/detectops/contentgov/content"
)

// itemKeyPrefix namespaces content item keys inside the Badger keyspace.
const itemKeyPrefix = "item/"

// BadgerStore persists content items in an embedded Badger database.
// It serves single-node deployments where no NATS server is available.
type BadgerStore struct {
	db *badger.DB
}

// BadgerConfig holds configuration for opening a BadgerStore.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful
	// for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives Badger's internal log output. If nil, Badger's
	// logging is disabled.
	Logger *slog.Logger
}

// OpenBadgerStore opens a BadgerStore with the given configuration,
// creating the directory if needed. Call Close when done.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Get retrieves an item by id.
func (s *BadgerStore) Get(ctx context.Context, id string) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var item content.ContentItem
	err := s.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get([]byte(itemKeyPrefix + id))
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}

	return &item, nil
}

// Put writes an item, creating or replacing it.
func (s *BadgerStore) Put(ctx context.Context, item *content.ContentItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(itemKeyPrefix+item.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store item: %w", err)
	}

	return nil
}

// Create writes an item only if the id is not already taken.
func (s *BadgerStore) Create(ctx context.Context, item *content.ContentItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	key := []byte(itemKeyPrefix + item.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, item.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("create item: %w", err)
	}

	return nil
}

// List returns all items matching the filter.
func (s *BadgerStore) List(ctx context.Context, filter Filter) ([]*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []*content.ContentItem
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var item content.ContentItem
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			})
			if err != nil {
				continue // Skip entries that fail to load
			}
			if filter.Matches(&item) {
				items = append(items, &item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	return items, nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
