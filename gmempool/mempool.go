package gmempool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/gcrypto"
	"github.com/gordian-engine/gmempool/gstore"
	"github.com/gordian-engine/gmempool/gtransport"
	"github.com/gordian-engine/gmempool/gwatchdog"
)

// Config is the set of dependencies for [New].
type Config struct {
	// The local authority.
	Self gcrypto.PubKey

	Committee *gcommittee.Committee

	Parameters Parameters

	Store gstore.BatchStore

	// Used to broadcast sealed batches.
	Sender gtransport.ReliableSender

	// Defaults to [gbatch.Blake2bHashScheme].
	HashScheme gbatch.HashScheme

	// Digests of persisted batches are sent here, in the order they are persisted.
	// The mempool never closes this channel.
	Consensus chan<- gbatch.Digest

	// Required. A store failure terminates the watchdog,
	// which cancels the watchdog's context.
	// Pass that context to [New] so that termination stops every stage.
	Watchdog *gwatchdog.Watchdog

	// Optional.
	Metrics *Metrics
}

// Mempool is the pipeline of a single authority.
type Mempool struct {
	log *slog.Logger

	addr string

	txs      *TxReceiver
	receiver *Receiver

	bm *BatchMaker
	qw *QuorumWaiter
	p  *Processor
}

// New validates cfg and starts every stage of the pipeline.
// The stages run until ctx is canceled;
// call [*Mempool.Wait] afterward to wait for them to return.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Mempool, error) {
	if err := cfg.Parameters.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if cfg.Committee == nil {
		return nil, errors.New("committee is required")
	}
	if cfg.Self == nil {
		return nil, errors.New("self public key is required")
	}
	addr, ok := cfg.Committee.Address(cfg.Self)
	if !ok {
		return nil, fmt.Errorf(
			"public key %x is not a member of the committee for epoch %d",
			cfg.Self.PubKeyBytes(), cfg.Committee.Epoch(),
		)
	}

	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("sender is required")
	}
	if cfg.Consensus == nil {
		return nil, errors.New("consensus channel is required")
	}
	if cfg.Watchdog == nil {
		return nil, errors.New("watchdog is required")
	}

	hs := cfg.HashScheme
	if hs == nil {
		hs = gbatch.Blake2bHashScheme{}
	}

	params := cfg.Parameters

	txCh := make(chan gbatch.Transaction, ChannelCapacity)
	sealedCh := make(chan SealedBatch, ChannelCapacity)
	releasedCh := make(chan []byte, ChannelCapacity)

	peerBatches, err := NewPeerBatchReceiver(log.With("sys", "peerbatches"), PeerBatchReceiverConfig{
		Store:      cfg.Store,
		HashScheme: hs,

		MaxBatchSize:  params.PeerBatchLimit(),
		RecentBatches: params.RecentPeerBatches,

		Watchdog: cfg.Watchdog,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	txs := NewTxReceiver(log.With("sys", "txreceiver"), txCh, params.MaxTxSize, cfg.Metrics)

	m := &Mempool{
		log: log,

		addr: addr,

		txs:      txs,
		receiver: NewReceiver(log.With("sys", "receiver"), txs, peerBatches),
	}

	m.bm = NewBatchMaker(ctx, log.With("sys", "batchmaker"), BatchMakerConfig{
		BatchSize:     params.BatchSize,
		MaxBatchDelay: params.MaxBatchDelay,

		BlockedSendLogThreshold: params.BlockedSendLogThreshold,

		Transactions: txCh,
		Out:          sealedCh,

		Targets: cfg.Committee.BroadcastTargets(cfg.Self),
		Sender:  cfg.Sender,

		Watchdog: cfg.Watchdog,
		Metrics:  cfg.Metrics,
	})

	m.qw = NewQuorumWaiter(ctx, log.With("sys", "quorumwaiter"), QuorumWaiterConfig{
		Committee: cfg.Committee,
		Self:      cfg.Self,

		In:  sealedCh,
		Out: releasedCh,

		BlockedSendLogThreshold: params.BlockedSendLogThreshold,

		Watchdog: cfg.Watchdog,

		Metrics: cfg.Metrics,
	})

	m.p = NewProcessor(ctx, log.With("sys", "processor"), ProcessorConfig{
		Store:      cfg.Store,
		HashScheme: hs,

		In:  releasedCh,
		Out: cfg.Consensus,

		Watchdog: cfg.Watchdog,

		BlockedSendLogThreshold: params.BlockedSendLogThreshold,

		Metrics: cfg.Metrics,
	})

	log.Info(
		"Started mempool",
		"addr", addr,
		"epoch", cfg.Committee.Epoch(),
		"committee_size", cfg.Committee.Size(),
		"quorum_threshold", cfg.Committee.QuorumThreshold(),
	)

	return m, nil
}

// Wait blocks until every stage has returned.
func (m *Mempool) Wait() {
	m.bm.Wait()
	m.qw.Wait()
	m.p.Wait()
}

// Address is the local authority's address in the committee.
func (m *Mempool) Address() string {
	return m.addr
}

// Handler is the inbound message handler to register with the transport listener.
func (m *Mempool) Handler() gtransport.Handler {
	return m.receiver
}

// SubmitTransaction queues a client transaction for batching.
// See [*TxReceiver.SubmitTransaction].
func (m *Mempool) SubmitTransaction(ctx context.Context, tx gbatch.Transaction) error {
	return m.txs.SubmitTransaction(ctx, tx)
}
