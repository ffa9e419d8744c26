package gbatchpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/trace"
	"sync"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/internal/gchan"
)

// Pool manages retrieval of batches for the digests in the current round.
//
// Methods on Pool are not safe for concurrent use,
// unless explicitly described as such.
// A single consensus goroutine is expected to call
// EnterRound, Need, SetAvailable, and Have.
type Pool struct {
	log *slog.Logger

	curRequests map[gbatch.Digest]retrieveRequest

	retrieveRequests   chan retrieveRequest
	enterRoundRequests chan enterRoundRequest

	workerWG sync.WaitGroup

	done chan struct{}
}

type enterRoundRequest struct {
	H uint64
	R uint32

	Handled chan struct{}
}

// New returns a Pool with nWorkers background retrievers.
// The workers start on the first call to [*Pool.EnterRound].
func New(
	ctx context.Context,
	log *slog.Logger,
	nWorkers int,
	retriever Retriever,
) *Pool {
	if nWorkers <= 0 {
		panic(fmt.Errorf("BUG: gbatchpool.New: nWorkers must be positive (got %d)", nWorkers))
	}

	p := &Pool{
		log: log,

		curRequests: make(map[gbatch.Digest]retrieveRequest),

		retrieveRequests:   make(chan retrieveRequest, nWorkers),
		enterRoundRequests: make(chan enterRoundRequest), // Unbuffered.

		done: make(chan struct{}),
	}

	go p.kernel(ctx, nWorkers, retriever)

	return p
}

func (p *Pool) kernel(ctx context.Context, nWorkers int, retriever Retriever) {
	defer close(p.done)

	ctx, task := trace.NewTask(ctx, "gbatchpool.Pool.kernel")
	defer task.End()

	// Workers need a populated round list,
	// so they are not started until the first round is entered.
	var rounds *roundList
	var roundCancel context.CancelCauseFunc
	select {
	case <-ctx.Done():
		p.log.Info(
			"Batch pool stopping before first call to EnterRound",
			"cause", context.Cause(ctx),
		)
		return

	case req := <-p.enterRoundRequests:
		rounds = &roundList{Height: req.H, Round: req.R}
		rounds.Ctx, roundCancel = context.WithCancelCause(ctx)

		p.workerWG.Add(nWorkers)
		for i := range nWorkers {
			w := &worker{
				log:       p.log.With("w_id", i),
				roundList: rounds,
				retriever: retriever,
			}
			go w.Run(&p.workerWG, p.retrieveRequests)
		}
		close(req.Handled)
	}

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Batch pool stopping", "cause", context.Cause(ctx))
			roundCancel(context.Cause(ctx))
			return

		case req := <-p.enterRoundRequests:
			clear(p.curRequests)

			next := &roundList{Height: req.H, Round: req.R}

			// The next round must be linked before the current one is canceled,
			// because workers follow the link upon cancellation.
			var nextCancel context.CancelCauseFunc
			next.Ctx, nextCancel = context.WithCancelCause(ctx)
			rounds.Next = next

			roundCancel(errRoundOver)
			roundCancel = nextCancel

			rounds = next

			close(req.Handled)
		}
	}
}

// Wait blocks until the kernel and every worker have returned.
func (p *Pool) Wait() {
	// The kernel adds to the worker group,
	// so it must finish before waiting on the group.
	<-p.done
	p.workerWG.Wait()
}

// EnterRound discards the requests of the previous round,
// canceling any retrievals still in progress.
func (p *Pool) EnterRound(ctx context.Context, height uint64, round uint32) {
	req := enterRoundRequest{H: height, R: round, Handled: make(chan struct{})}
	_, _ = gchan.ReqResp(
		ctx, p.log,
		p.enterRoundRequests, req,
		req.Handled,
		"sending enter round request to batch pool kernel",
	)
}

// Need starts retrieval of the batch for d in the given height and round.
// Subsequent calls with the same digest are ignored
// until the next call to EnterRound.
func (p *Pool) Need(height uint64, round uint32, d gbatch.Digest) {
	if _, have := p.curRequests[d]; have {
		p.log.Debug("Ignoring repeated request for same digest", "digest", d)
		return
	}

	req := retrieveRequest{
		Height: height,
		Round:  round,

		Digest: d,

		Ready:  make(chan struct{}),
		Result: new(retrieveResult),
	}

	p.curRequests[d] = req

	p.retrieveRequests <- req
}

// SetAvailable records txs as the batch for d
// without involving the workers.
// A proposer uses this for the batch it already holds.
func (p *Pool) SetAvailable(d gbatch.Digest, txs []gbatch.Transaction) {
	if _, have := p.curRequests[d]; have {
		panic(fmt.Errorf(
			"BUG: SetAvailable called on digest %s used in previous call to Need or SetAvailable", d,
		))
	}

	req := retrieveRequest{
		Digest: d,

		Ready:  make(chan struct{}),
		Result: &retrieveResult{Txs: txs},
	}
	close(req.Ready)
	p.curRequests[d] = req
}

// Have reports whether the retrieval for d has finished,
// and if so, its result.
// It panics if d was not passed to Need or SetAvailable in the current round.
func (p *Pool) Have(d gbatch.Digest) (txs []gbatch.Transaction, err error, have bool) {
	req, ok := p.curRequests[d]
	if !ok {
		panic(errors.New("BUG: Have called before a call to Need or SetAvailable for " + d.String()))
	}

	select {
	case <-req.Ready:
		return req.Result.Txs, req.Result.Err, true
	default:
		return nil, nil, false
	}
}

// Ready returns a channel that is closed when the retrieval for d finishes.
// It returns nil if d was not requested in the current round.
func (p *Pool) Ready(d gbatch.Digest) <-chan struct{} {
	req, ok := p.curRequests[d]
	if !ok {
		return nil
	}
	return req.Ready
}

type retrieveRequest struct {
	Height uint64
	Round  uint32

	Digest gbatch.Digest

	Ready  chan struct{}
	Result *retrieveResult
}

type retrieveResult struct {
	Txs []gbatch.Transaction
	Err error
}
