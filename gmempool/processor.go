package gmempool

import (
	"context"
	"log/slog"
	"runtime/trace"
	"time"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gstore"
	"github.com/gordian-engine/gmempool/gwatchdog"
)

// ProcessorConfig is the set of dependencies for [NewProcessor].
type ProcessorConfig struct {
	Store      gstore.BatchStore
	HashScheme gbatch.HashScheme

	// Serialized batches released by the QuorumWaiter.
	In <-chan []byte

	// Digests of persisted batches, consumed by consensus.
	Out chan<- gbatch.Digest

	// Required: a failed store write terminates the pipeline through the watchdog.
	Watchdog *gwatchdog.Watchdog

	BlockedSendLogThreshold time.Duration

	// Optional.
	Metrics *Metrics
}

// Processor hashes each released batch,
// persists it under its digest,
// and then forwards the digest to consensus.
// A digest is never forwarded before its batch is durably stored.
//
// A store failure is fatal:
// the Processor terminates the watchdog with a [StoreFailureError]
// and processes nothing further.
type Processor struct {
	log *slog.Logger

	cfg ProcessorConfig

	done chan struct{}
}

func NewProcessor(ctx context.Context, log *slog.Logger, cfg ProcessorConfig) *Processor {
	if cfg.BlockedSendLogThreshold <= 0 {
		cfg.BlockedSendLogThreshold = DefaultParameters().BlockedSendLogThreshold
	}

	p := &Processor{
		log: log,
		cfg: cfg,

		done: make(chan struct{}),
	}

	go p.kernel(ctx)

	return p
}

// Wait blocks until p's kernel goroutine has returned.
func (p *Processor) Wait() {
	<-p.done
}

func (p *Processor) kernel(ctx context.Context) {
	defer close(p.done)

	ctx, task := trace.NewTask(ctx, "gmempool.Processor.kernel")
	defer task.End()

	sigCh := monitorKernel(ctx, p.cfg.Watchdog, "gmempool.Processor")

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Stopping due to context cancellation", "cause", context.Cause(ctx))
			return

		case sig := <-sigCh:
			close(sig.Alive)

		case serialized := <-p.cfg.In:
			d, ok := p.persist(ctx, serialized)
			if !ok {
				return
			}

			if !sendAnsweringSignals(
				ctx, p.log,
				p.cfg.Out, d,
				sigCh,
				"forwarding digest to consensus",
				p.cfg.BlockedSendLogThreshold,
			) {
				return
			}

			p.cfg.Metrics.batchCommitted()
		}
	}
}

func (p *Processor) persist(ctx context.Context, serialized []byte) (gbatch.Digest, bool) {
	defer trace.StartRegion(ctx, "persist").End()

	d := p.cfg.HashScheme.Digest(serialized)

	if err := p.cfg.Store.SaveBatch(ctx, d, serialized); err != nil {
		if ctx.Err() != nil {
			// Shutting down; the failure is a consequence, not a cause.
			p.log.Info(
				"Stopping due to context cancellation during store write",
				"cause", context.Cause(ctx),
			)
			return d, false
		}

		p.log.Error("Failed to persist batch", "digest", d, "err", err)
		p.cfg.Watchdog.Terminate(StoreFailureError{Digest: d, Err: err})
		return d, false
	}

	p.log.Debug("Persisted batch", "digest", d, "size", len(serialized))
	return d, true
}
