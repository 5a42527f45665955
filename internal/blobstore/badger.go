package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/casadona/deidpipe/internal/common"
)

const (
	dataKeyPrefix = "blob:"
	metaKeyPrefix = "meta:"
)

// BadgerStore implements Store on top of a BadgerDB instance. Blob bytes and
// object metadata live under separate key prefixes so List stays cheap.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ Store = (*BadgerStore)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger opens a BadgerDB-backed blob store at the given directory,
// creating it if needed. With inMemory set, no files are written; this is
// the mode the tests run in.
func OpenBadger(path string, inMemory bool, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, err
			}
			info, err = os.Stat(path)
			if err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", path)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Close closes the underlying BadgerDB database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Put stores data under key. Overwriting an existing key keeps the original
// CreatedAt, mirroring object-store semantics where re-uploads of the same
// name replace content in place.
func (s *BadgerStore) Put(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return common.ValidationErrorf("blob key is required")
	}
	info := ObjectInfo{
		Key:       key,
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.Update(func(tx *badger.Txn) error {
		if prev, err := tx.Get([]byte(metaKeyPrefix + key)); err == nil {
			_ = prev.Value(func(val []byte) error {
				var old ObjectInfo
				if json.Unmarshal(val, &old) == nil && !old.CreatedAt.IsZero() {
					info.CreatedAt = old.CreatedAt
				}
				return nil
			})
		}
		meta, err := json.Marshal(info)
		if err != nil {
			return err
		}
		if err := tx.Set([]byte(dataKeyPrefix+key), data); err != nil {
			return err
		}
		return tx.Set([]byte(metaKeyPrefix+key), meta)
	})
	if err != nil {
		s.logger.Error("blobstore.put.failed", "key", key, "error", err)
		return common.PersistenceError("put "+key, err)
	}
	s.logger.Debug("blobstore.put.ok", "key", key, "bytes", len(data))
	return nil
}

// Get returns the bytes stored under key, or common.ErrNotFound.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(dataKeyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("blob %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, common.PersistenceError("get "+key, err)
	}
	return data, nil
}

// List returns metadata for every object whose key starts with prefix,
// ordered by key.
func (s *BadgerStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaKeyPrefix + prefix)
		it := tx.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var info ObjectInfo
				if err := json.Unmarshal(val, &info); err != nil {
					return err
				}
				out = append(out, info)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, common.PersistenceError("list "+prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
