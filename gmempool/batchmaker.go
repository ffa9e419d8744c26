package gmempool

import (
	"context"
	"log/slog"
	"runtime/trace"
	"time"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/gcrypto"
	"github.com/gordian-engine/gmempool/gtransport"
	"github.com/gordian-engine/gmempool/gwatchdog"
)

// SealedBatch is the output of the [BatchMaker]:
// a serialized batch and the delivery handles for its broadcast.
type SealedBatch struct {
	// The exact bytes that were broadcast,
	// and that will be hashed and persisted.
	Serialized []byte

	// One handle per broadcast target.
	Handles []PeerHandle
}

// PeerHandle associates a delivery handle with the authority it was sent to,
// so that the [QuorumWaiter] can weigh the acknowledgement by stake.
type PeerHandle struct {
	PubKey gcrypto.PubKey
	Handle gtransport.DeliveryHandle
}

// Seal reasons, used as a metrics label.
const (
	sealReasonSize  = "size"
	sealReasonDelay = "delay"
)

// BatchMakerConfig is the set of dependencies for [NewBatchMaker].
type BatchMakerConfig struct {
	BatchSize     int
	MaxBatchDelay time.Duration

	BlockedSendLogThreshold time.Duration

	// Incoming client transactions.
	Transactions <-chan gbatch.Transaction

	// Sealed batches, consumed by the QuorumWaiter.
	Out chan<- SealedBatch

	// Every authority except this one.
	Targets []gcommittee.Target

	Sender gtransport.ReliableSender

	// Optional; if set, the kernel answers liveness signals.
	Watchdog *gwatchdog.Watchdog

	// Optional.
	Metrics *Metrics
}

// BatchMaker accumulates transactions into batches.
//
// A batch is sealed when the serialized size of its transactions,
// each counted with its length prefix, reaches BatchSize,
// or when MaxBatchDelay has elapsed since its first transaction,
// whichever happens first.
// An empty batch is never sealed.
// Upon sealing, the batch is serialized,
// sent once to every broadcast target,
// and passed with its delivery handles to the output channel.
type BatchMaker struct {
	log *slog.Logger

	cfg BatchMakerConfig

	done chan struct{}
}

func NewBatchMaker(ctx context.Context, log *slog.Logger, cfg BatchMakerConfig) *BatchMaker {
	if cfg.BlockedSendLogThreshold <= 0 {
		cfg.BlockedSendLogThreshold = DefaultParameters().BlockedSendLogThreshold
	}

	m := &BatchMaker{
		log: log,
		cfg: cfg,

		done: make(chan struct{}),
	}

	go m.kernel(ctx)

	return m
}

// Wait blocks until m's kernel goroutine has returned.
// Initiate a clean shutdown by canceling the context passed to [NewBatchMaker].
func (m *BatchMaker) Wait() {
	<-m.done
}

func (m *BatchMaker) kernel(ctx context.Context) {
	defer close(m.done)

	ctx, task := trace.NewTask(ctx, "gmempool.BatchMaker.kernel")
	defer task.End()

	sigCh := monitorKernel(ctx, m.cfg.Watchdog, "gmempool.BatchMaker")

	var pending []gbatch.Transaction
	pendingSize := 0

	// The delay timer only runs while there is a pending transaction.
	// A nil channel is never selected.
	timer := time.NewTimer(m.cfg.MaxBatchDelay)
	timer.Stop()
	defer timer.Stop()
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			m.log.Info(
				"Stopping due to context cancellation",
				"cause", context.Cause(ctx),
				"pending_txs", len(pending),
			)
			return

		case sig := <-sigCh:
			close(sig.Alive)

		case tx := <-m.cfg.Transactions:
			if len(pending) == 0 {
				timer.Reset(m.cfg.MaxBatchDelay)
				timerC = timer.C
			}

			pending = append(pending, tx)
			pendingSize += gbatch.FramedTxSize(len(tx))

			if pendingSize < m.cfg.BatchSize {
				continue
			}

			timer.Stop()
			timerC = nil

			if !m.seal(ctx, pending, pendingSize, sealReasonSize, sigCh) {
				return
			}
			pending = nil
			pendingSize = 0

		case <-timerC:
			timerC = nil

			if len(pending) == 0 {
				// Unreachable while the timer is only armed for a pending batch,
				// but the timer must never produce an empty batch.
				continue
			}

			if !m.seal(ctx, pending, pendingSize, sealReasonDelay, sigCh) {
				return
			}
			pending = nil
			pendingSize = 0
		}
	}
}

// seal serializes txs, broadcasts the result,
// and sends the sealed batch downstream.
// It reports false if the context was canceled while sending.
func (m *BatchMaker) seal(
	ctx context.Context,
	txs []gbatch.Transaction, txsSize int,
	reason string,
	sigCh <-chan gwatchdog.Signal,
) bool {
	defer trace.StartRegion(ctx, "seal").End()

	serialized := gbatch.EncodeBatch(txs)

	handles := make([]PeerHandle, len(m.cfg.Targets))
	for i, t := range m.cfg.Targets {
		handles[i] = PeerHandle{
			PubKey: t.PubKey,
			Handle: m.cfg.Sender.Send(ctx, t.Addr, serialized),
		}
	}

	m.cfg.Metrics.batchSealed(reason, len(serialized), len(txs))
	m.log.Debug(
		"Sealed batch",
		"reason", reason,
		"n_txs", len(txs),
		"txs_size", txsSize,
		"serialized_size", len(serialized),
	)

	return sendAnsweringSignals(
		ctx, m.log,
		m.cfg.Out, SealedBatch{Serialized: serialized, Handles: handles},
		sigCh,
		"sending sealed batch to quorum waiter",
		m.cfg.BlockedSendLogThreshold,
	)
}
