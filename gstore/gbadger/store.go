// Package gbadger contains a BadgerDB-backed [gstore.BatchStore].
package gbadger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/trace"

	"github.com/dgraph-io/badger/v4"
	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gstore"
)

// Keys are namespaced so that other data may share the database later.
const batchKeyPrefix = "b/"

// Badger transactions are optimistic;
// concurrent writers to the same key may see ErrConflict and retry.
const maxConflictRetries = 8

// Store is a [gstore.BatchStore] backed by BadgerDB.
type Store struct {
	db *badger.DB
}

// NewOnDiskStore opens or creates a database in dir.
// Writes are synced to disk before SaveBatch returns.
func NewOnDiskStore(log *slog.Logger, dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLogger(slogAdapter{log: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// NewInMemStore returns a Store that keeps all data in memory.
func NewInMemStore(log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(slogAdapter{log: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func batchKey(d gbatch.Digest) []byte {
	k := make([]byte, 0, len(batchKeyPrefix)+gbatch.DigestSize)
	k = append(k, batchKeyPrefix...)
	return append(k, d[:]...)
}

func (s *Store) SaveBatch(ctx context.Context, digest gbatch.Digest, data []byte) error {
	defer trace.StartRegion(ctx, "SaveBatch").End()

	key := batchKey(digest)

	var err error
	for range maxConflictRetries {
		if err = ctx.Err(); err != nil {
			return err
		}

		err = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err == nil {
				return item.Value(func(have []byte) error {
					if bytes.Equal(have, data) {
						return nil
					}
					return gstore.ConflictingBatchError{Digest: digest}
				})
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("failed to check for existing batch: %w", err)
			}

			// Badger retains the value slice until the transaction commits,
			// and the caller may reuse data after we return.
			return txn.Set(key, bytes.Clone(data))
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}

	return fmt.Errorf("failed to save batch after %d conflicting attempts: %w", maxConflictRetries, err)
}

func (s *Store) LoadBatch(ctx context.Context, digest gbatch.Digest, dst []byte) ([]byte, error) {
	defer trace.StartRegion(ctx, "LoadBatch").End()

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(batchKey(digest))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return gstore.ErrBatchNotFound
			}
			return fmt.Errorf("failed to load batch: %w", err)
		}

		return item.Value(func(val []byte) error {
			dst = append(dst, val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

func (s *Store) HasBatch(ctx context.Context, digest gbatch.Digest) (bool, error) {
	defer trace.StartRegion(ctx, "HasBatch").End()

	var has bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(batchKey(digest))
		if err == nil {
			has = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to check for batch: %w", err)
	}
	return has, nil
}
