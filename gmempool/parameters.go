package gmempool

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/spf13/pflag"
)

// ChannelCapacity is the buffer size of every channel between pipeline stages.
// A full channel blocks the upstream stage, which is the only flow control.
const ChannelCapacity = 1000

// Parameters are the tunable values of the pipeline.
type Parameters struct {
	// The BatchMaker seals a batch once the serialized size of its transactions,
	// counting each transaction's length prefix, reaches BatchSize.
	BatchSize int

	// Largest transaction accepted from clients or other validators.
	// Empty transactions are never accepted.
	MaxTxSize int

	// The BatchMaker seals a non-empty batch once MaxBatchDelay has elapsed
	// since the first transaction was added to it.
	MaxBatchDelay time.Duration

	// Largest decoded batch accepted from another validator.
	// Zero means [Parameters.MinPeerBatchSize].
	// A nonzero value must be at least that large,
	// or honest peers' batches would be rejected.
	MaxPeerBatchSize int

	// Number of recently stored peer batch digests remembered,
	// so that retransmissions are acknowledged without touching the store.
	RecentPeerBatches int

	// How long a stage may be blocked on a full downstream channel
	// before the stall is logged.
	BlockedSendLogThreshold time.Duration
}

// DefaultParameters returns the default pipeline parameters.
func DefaultParameters() Parameters {
	return Parameters{
		BatchSize:     500_000,
		MaxBatchDelay: 200 * time.Millisecond,

		MaxTxSize: 500_000,

		RecentPeerBatches: 10_000,

		BlockedSendLogThreshold: time.Second,
	}
}

// Validate reports every invalid field of p.
func (p Parameters) Validate() error {
	var err error
	if p.BatchSize <= 0 {
		err = errors.Join(err, errors.New("BatchSize must be positive"))
	}
	if p.MaxBatchDelay <= 0 {
		err = errors.Join(err, errors.New("MaxBatchDelay must be positive"))
	}
	if p.MaxTxSize <= 0 {
		err = errors.Join(err, errors.New("MaxTxSize must be positive"))
	}
	if p.MaxPeerBatchSize < 0 {
		err = errors.Join(err, errors.New("MaxPeerBatchSize must not be negative"))
	} else if p.BatchSize > 0 && p.MaxTxSize > 0 &&
		p.MaxPeerBatchSize > 0 && p.MaxPeerBatchSize < p.MinPeerBatchSize() {
		err = errors.Join(err, fmt.Errorf(
			"MaxPeerBatchSize %d is smaller than the largest batch this BatchSize and MaxTxSize can produce (%d)",
			p.MaxPeerBatchSize, p.MinPeerBatchSize(),
		))
	}
	if p.RecentPeerBatches <= 0 {
		err = errors.Join(err, errors.New("RecentPeerBatches must be positive"))
	}
	if p.BlockedSendLogThreshold <= 0 {
		err = errors.Join(err, errors.New("BlockedSendLogThreshold must be positive"))
	}
	return err
}

// MinPeerBatchSize is the largest decoded batch
// that a BatchMaker using p can seal.
//
// A batch is sealed by the first transaction that brings it to BatchSize,
// so before that transaction it holds at most BatchSize-1 framed bytes.
func (p Parameters) MinPeerBatchSize() int {
	return p.BatchSize - 1 + gbatch.FramedTxSize(p.MaxTxSize) + gbatch.MaxBatchOverhead
}

// PeerBatchLimit is the decoded size limit applied to peer batches:
// MaxPeerBatchSize if set, otherwise [Parameters.MinPeerBatchSize].
func (p Parameters) PeerBatchLimit() int {
	if p.MaxPeerBatchSize > 0 {
		return p.MaxPeerBatchSize
	}
	return p.MinPeerBatchSize()
}

// BindFlags registers flags on fs that override the fields of p.
// The current values of p are used as the flag defaults.
func (p *Parameters) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&p.BatchSize, "batch-size", p.BatchSize, "seal a batch once its transactions total this many bytes")
	fs.DurationVar(&p.MaxBatchDelay, "max-batch-delay", p.MaxBatchDelay, "seal a non-empty batch after this delay")
	fs.IntVar(&p.MaxTxSize, "max-tx-size", p.MaxTxSize, "reject transactions larger than this many bytes")
	fs.IntVar(&p.MaxPeerBatchSize, "max-peer-batch-size", p.MaxPeerBatchSize, "reject decoded peer batches larger than this many bytes; 0 derives it from batch-size and max-tx-size")
	fs.IntVar(&p.RecentPeerBatches, "recent-peer-batches", p.RecentPeerBatches, "number of recently stored peer batch digests to remember")
	fs.DurationVar(&p.BlockedSendLogThreshold, "blocked-send-log-threshold", p.BlockedSendLogThreshold, "log when a stage is blocked on a full queue for this long")
}
