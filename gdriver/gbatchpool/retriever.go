package gbatchpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gstore"
)

// Retriever produces the transactions of the batch with a given digest.
// The [Pool] calls Retrieve on background worker goroutines,
// so Retrieve must be safe for concurrent use.
// The context is canceled when the round of the request ends.
type Retriever interface {
	Retrieve(ctx context.Context, d gbatch.Digest) ([]gbatch.Transaction, error)
}

// StoreRetriever is a [Retriever] backed by the local batch store.
//
// Batches normally reach the store through the mempool's peer batch path.
// A batch that is not yet stored is polled for until it arrives
// or the round ends.
type StoreRetriever struct {
	Store      gstore.BatchStore
	HashScheme gbatch.HashScheme

	// Largest decoded batch accepted; non-positive means no limit.
	MaxBatchSize int

	// Delay between lookups of a missing batch.
	PollInterval time.Duration
}

func (r StoreRetriever) Retrieve(ctx context.Context, d gbatch.Digest) ([]gbatch.Transaction, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		data, err := r.Store.LoadBatch(ctx, d, nil)
		if err == nil {
			return r.decode(d, data)
		}
		if !errors.Is(err, gstore.ErrBatchNotFound) {
			return nil, fmt.Errorf("failed to load batch %s: %w", d, err)
		}

		if timer == nil {
			timer = time.NewTimer(r.PollInterval)
		} else {
			timer.Reset(r.PollInterval)
		}

		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-timer.C:
		}
	}
}

func (r StoreRetriever) decode(d gbatch.Digest, data []byte) ([]gbatch.Transaction, error) {
	if got := r.HashScheme.Digest(data); got != d {
		return nil, fmt.Errorf("stored batch for %s has digest %s", d, got)
	}

	txs, err := gbatch.DecodeBatch(data, r.MaxBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored batch %s: %w", d, err)
	}
	return txs, nil
}
