package gmempool

import (
	"context"
	"log/slog"
	"runtime/trace"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/gcrypto"
	"github.com/gordian-engine/gmempool/gwatchdog"
	"github.com/gordian-engine/gmempool/internal/gchan"
	"github.com/gordian-engine/gmempool/internal/glog"
)

// QuorumWaiterConfig is the set of dependencies for [NewQuorumWaiter].
type QuorumWaiterConfig struct {
	Committee *gcommittee.Committee

	// The local authority, whose stake counts toward every quorum
	// without waiting for any acknowledgement.
	Self gcrypto.PubKey

	// Sealed batches from the BatchMaker.
	In <-chan SealedBatch

	// Serialized batches that reached quorum, consumed by the Processor.
	Out chan<- []byte

	// Upper bound on batches waiting for quorum at once.
	// When reached, the QuorumWaiter stops reading In until a wait finishes.
	// Zero means [ChannelCapacity].
	MaxConcurrentWaits int

	BlockedSendLogThreshold time.Duration

	// Optional; if set, the kernel answers liveness signals.
	Watchdog *gwatchdog.Watchdog

	// Optional.
	Metrics *Metrics
}

// QuorumWaiter releases each sealed batch
// once the accumulated stake of the local authority
// and the peers that acknowledged it reaches the committee's quorum threshold.
//
// Each batch is waited on independently and concurrently,
// so batches are released in the order they reach quorum,
// which may differ from the order they were sealed.
// Handles still pending at release are abandoned, not canceled:
// the stragglers may still receive the batch.
// A batch that can never reach quorum waits until shutdown.
type QuorumWaiter struct {
	log *slog.Logger

	cfg QuorumWaiterConfig

	selfStake uint64

	waiters sync.WaitGroup

	done chan struct{}
}

func NewQuorumWaiter(ctx context.Context, log *slog.Logger, cfg QuorumWaiterConfig) *QuorumWaiter {
	if cfg.MaxConcurrentWaits <= 0 {
		cfg.MaxConcurrentWaits = ChannelCapacity
	}
	if cfg.BlockedSendLogThreshold <= 0 {
		cfg.BlockedSendLogThreshold = DefaultParameters().BlockedSendLogThreshold
	}

	w := &QuorumWaiter{
		log: log,
		cfg: cfg,

		selfStake: cfg.Committee.Stake(cfg.Self),

		done: make(chan struct{}),
	}

	go w.kernel(ctx)

	return w
}

// Wait blocks until the kernel and every per-batch wait have returned.
func (w *QuorumWaiter) Wait() {
	<-w.done
	w.waiters.Wait()
}

func (w *QuorumWaiter) kernel(ctx context.Context) {
	defer close(w.done)

	ctx, task := trace.NewTask(ctx, "gmempool.QuorumWaiter.kernel")
	defer task.End()

	sigCh := monitorKernel(ctx, w.cfg.Watchdog, "gmempool.QuorumWaiter")

	// Semaphore bounding the concurrent waits.
	slots := make(chan struct{}, w.cfg.MaxConcurrentWaits)

	for {
		// Acquire a slot before accepting another batch,
		// so that a backlog of unresolved batches applies backpressure.
	ACQUIRE:
		for {
			select {
			case <-ctx.Done():
				w.log.Info("Context canceled while acquiring quorum wait slot", "cause", context.Cause(ctx))
				return
			case sig := <-sigCh:
				close(sig.Alive)
			case slots <- struct{}{}:
				break ACQUIRE
			}
		}

		var b SealedBatch
	RECEIVE:
		for {
			select {
			case <-ctx.Done():
				w.log.Info("Context canceled while waiting for sealed batch", "cause", context.Cause(ctx))
				return
			case sig := <-sigCh:
				close(sig.Alive)
			case b = <-w.cfg.In:
				break RECEIVE
			}
		}

		w.waiters.Add(1)
		go func() {
			defer w.waiters.Done()
			defer func() { <-slots }()

			w.waitForQuorum(ctx, b)
		}()
	}
}

func (w *QuorumWaiter) waitForQuorum(ctx context.Context, b SealedBatch) {
	defer trace.StartRegion(ctx, "waitForQuorum").End()

	start := time.Now()
	w.cfg.Metrics.quorumStarted()
	released := false
	defer func() { w.cfg.Metrics.quorumFinished(released, start) }()

	threshold := w.cfg.Committee.QuorumThreshold()
	stake := w.selfStake

	if stake >= threshold {
		released = w.release(ctx, b.Serialized)
		return
	}

	// Watchers stop once this wait returns.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered to the handle count so that watchers never block on send.
	resolved := make(chan int, len(b.Handles))
	for i, ph := range b.Handles {
		go func() {
			select {
			case <-waitCtx.Done():
			case <-ph.Handle.Done():
				resolved <- i
			}
		}()
	}

	// Guards against counting the same authority twice.
	responders := bitset.New(uint(w.cfg.Committee.Size()))

	for remaining := len(b.Handles); remaining > 0; remaining-- {
		var i int
		select {
		case <-ctx.Done():
			w.cancelUnresolved(b.Handles)
			return
		case i = <-resolved:
		}

		ph := b.Handles[i]
		if err := ph.Handle.Err(); err != nil {
			w.cfg.Metrics.peerFailed()
			w.log.Debug("Peer failed to acknowledge batch", "peer", glog.ShortHex(ph.PubKey.PubKeyBytes()), "err", err)
			continue
		}

		idx, ok := w.cfg.Committee.Index(ph.PubKey)
		if !ok || responders.Test(uint(idx)) {
			continue
		}
		responders.Set(uint(idx))

		stake += w.cfg.Committee.Stake(ph.PubKey)
		if stake >= threshold {
			released = w.release(ctx, b.Serialized)
			return
		}
	}

	w.log.Warn(
		"Every delivery resolved without reaching quorum; batch will wait until shutdown",
		"stake", stake,
		"threshold", threshold,
		"n_acks", responders.Count(),
	)
	<-ctx.Done()
}

func (w *QuorumWaiter) release(ctx context.Context, serialized []byte) bool {
	return gchan.SendCLogBlocked(
		ctx, w.log,
		w.cfg.Out, serialized,
		"releasing batch to processor",
		w.cfg.BlockedSendLogThreshold,
	)
}

// cancelUnresolved stops delivery of handles still pending at shutdown.
func (w *QuorumWaiter) cancelUnresolved(handles []PeerHandle) {
	for _, ph := range handles {
		select {
		case <-ph.Handle.Done():
		default:
			ph.Handle.Cancel()
		}
	}
}
