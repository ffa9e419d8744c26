// Package gmemstore contains an in-memory [gstore.BatchStore].
package gmemstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gstore"
)

// BatchStore is an in-memory implementation of [gstore.BatchStore].
// Its contents are lost when the process exits.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[gbatch.Digest][]byte
}

func NewBatchStore() *BatchStore {
	return &BatchStore{
		batches: map[gbatch.Digest][]byte{},
	}
}

func (s *BatchStore) SaveBatch(_ context.Context, digest gbatch.Digest, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if have, ok := s.batches[digest]; ok {
		if bytes.Equal(have, data) {
			return nil
		}
		return gstore.ConflictingBatchError{Digest: digest}
	}

	s.batches[digest] = bytes.Clone(data)
	return nil
}

func (s *BatchStore) LoadBatch(_ context.Context, digest gbatch.Digest, dst []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.batches[digest]
	if !ok {
		return nil, gstore.ErrBatchNotFound
	}

	return append(dst, data...), nil
}

func (s *BatchStore) HasBatch(_ context.Context, digest gbatch.Digest) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.batches[digest]
	return ok, nil
}

// Len reports how many batches are stored.
func (s *BatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.batches)
}
