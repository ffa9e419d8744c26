package gmempool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gstore"
	"github.com/gordian-engine/gmempool/gwatchdog"
	"github.com/gordian-engine/gmempool/internal/gchan"
	lru "github.com/hashicorp/golang-lru"
)

// TxReceiver feeds client transactions into the BatchMaker's queue.
//
// A submission blocks while the queue is full,
// so a client is not acknowledged until its transaction is queued.
type TxReceiver struct {
	log *slog.Logger

	out chan<- gbatch.Transaction

	maxTxSize int

	metrics *Metrics
}

func NewTxReceiver(log *slog.Logger, out chan<- gbatch.Transaction, maxTxSize int, m *Metrics) *TxReceiver {
	return &TxReceiver{log: log, out: out, maxTxSize: maxTxSize, metrics: m}
}

// SubmitTransaction queues tx for batching.
// It returns [ErrEmptyTransaction] or a [TransactionTooLargeError]
// for a transaction that the BatchMaker must not see,
// and the context's cause if ctx finishes before tx is queued.
// The caller must not modify tx afterward.
func (r *TxReceiver) SubmitTransaction(ctx context.Context, tx gbatch.Transaction) error {
	if len(tx) == 0 {
		return ErrEmptyTransaction
	}
	if len(tx) > r.maxTxSize {
		return TransactionTooLargeError{Size: len(tx), Max: r.maxTxSize}
	}

	if !gchan.SendC(ctx, r.log, r.out, tx, "queueing client transaction") {
		return context.Cause(ctx)
	}
	r.metrics.txReceived()

	// Give other goroutines a chance to run between transactions,
	// so a flood of submissions does not starve the pipeline.
	runtime.Gosched()

	return nil
}

// HandleMessage implements [gtransport.Handler] for transaction messages.
func (r *TxReceiver) HandleMessage(ctx context.Context, msg []byte) error {
	tx, err := gbatch.DecodeTransactionMessage(msg)
	if err != nil {
		return err
	}
	return r.SubmitTransaction(ctx, tx)
}

// PeerBatchReceiver persists batches broadcast by other validators.
//
// Returning nil from HandleMessage acknowledges the batch to its sender,
// which is what counts toward the sender's quorum;
// so a batch is only acknowledged after it is durably stored.
type PeerBatchReceiver struct {
	log *slog.Logger

	store gstore.BatchStore
	hs    gbatch.HashScheme

	maxBatchSize int

	// Digests recently stored, so that retransmissions skip decode and store.
	recent *lru.Cache

	wd *gwatchdog.Watchdog

	metrics *Metrics
}

// PeerBatchReceiverConfig is the set of dependencies for [NewPeerBatchReceiver].
type PeerBatchReceiverConfig struct {
	Store      gstore.BatchStore
	HashScheme gbatch.HashScheme

	// Largest decoded batch accepted.
	MaxBatchSize int

	// Number of recently stored digests to remember.
	RecentBatches int

	// Required: a failed store write terminates the pipeline.
	Watchdog *gwatchdog.Watchdog

	// Optional.
	Metrics *Metrics
}

func NewPeerBatchReceiver(log *slog.Logger, cfg PeerBatchReceiverConfig) (*PeerBatchReceiver, error) {
	recent, err := lru.New(cfg.RecentBatches)
	if err != nil {
		return nil, fmt.Errorf("failed to create recent batch cache: %w", err)
	}

	return &PeerBatchReceiver{
		log: log,

		store: cfg.Store,
		hs:    cfg.HashScheme,

		maxBatchSize: cfg.MaxBatchSize,

		recent: recent,

		wd: cfg.Watchdog,

		metrics: cfg.Metrics,
	}, nil
}

// HandleMessage implements [gtransport.Handler] for batch messages.
func (r *PeerBatchReceiver) HandleMessage(ctx context.Context, msg []byte) error {
	d := r.hs.Digest(msg)
	if r.recent.Contains(d) {
		return nil
	}

	if _, err := gbatch.DecodeBatch(msg, r.maxBatchSize); err != nil {
		r.metrics.peerBatchRejected()
		return fmt.Errorf("malformed batch: %w", err)
	}

	if err := r.store.SaveBatch(ctx, d, msg); err != nil {
		if errors.As(err, new(gstore.ConflictingBatchError)) {
			r.metrics.peerBatchRejected()
			return err
		}

		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		r.log.Error("Failed to persist peer batch", "digest", d, "err", err)
		r.wd.Terminate(StoreFailureError{Digest: d, Err: err})
		return err
	}

	r.recent.Add(d, struct{}{})
	r.metrics.peerBatchStored()

	r.log.Debug("Stored peer batch", "digest", d, "size", len(msg))
	return nil
}

// Receiver is the single [gtransport.Handler] for inbound messages,
// routing each message by its kind.
type Receiver struct {
	log *slog.Logger

	txs     *TxReceiver
	batches *PeerBatchReceiver
}

func NewReceiver(log *slog.Logger, txs *TxReceiver, batches *PeerBatchReceiver) *Receiver {
	return &Receiver{log: log, txs: txs, batches: batches}
}

func (r *Receiver) HandleMessage(ctx context.Context, msg []byte) error {
	kind, err := gbatch.MessageKindOf(msg)
	if err != nil {
		r.log.Warn("Rejecting inbound message", "err", err)
		return err
	}

	switch kind {
	case gbatch.KindTransaction:
		err = r.txs.HandleMessage(ctx, msg)
	case gbatch.KindBatch:
		err = r.batches.HandleMessage(ctx, msg)
	default:
		panic(fmt.Errorf("BUG: unhandled message kind %s", kind))
	}

	if err != nil && ctx.Err() == nil {
		r.log.Warn("Rejecting inbound message", "kind", kind, "size", len(msg), "err", err)
	}
	return err
}
