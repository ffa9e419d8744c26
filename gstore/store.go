// Package gstore defines durable storage for serialized batches,
// keyed by their digest.
//
// Implementations live in subpackages:
// gmemstore (in-memory, for tests and ephemeral nodes),
// gsqlite (SQLite, cgo or pure Go depending on build tags),
// and gbadger (BadgerDB).
// Every implementation should pass the gstoretest compliance suite.
package gstore

import (
	"context"

	"github.com/gordian-engine/gmempool/gbatch"
)

// BatchStore persists serialized batches by digest.
//
// A successful SaveBatch must be durable before it returns,
// because the commit path forwards the digest to consensus only afterward.
type BatchStore interface {
	// SaveBatch stores data under digest.
	// Saving identical data under the same digest again is a no-op.
	// Saving different data under an existing digest
	// returns a [ConflictingBatchError].
	//
	// The store must not retain a reference to data.
	SaveBatch(ctx context.Context, digest gbatch.Digest, data []byte) error

	// LoadBatch appends the stored data for digest to dst
	// and returns the resulting slice.
	// If no batch exists for digest, LoadBatch returns [ErrBatchNotFound].
	LoadBatch(ctx context.Context, digest gbatch.Digest, dst []byte) ([]byte, error)

	// HasBatch reports whether a batch exists for digest.
	HasBatch(ctx context.Context, digest gbatch.Digest) (bool, error)
}
