package gbatchpool

import (
	"context"
	"log/slog"
	"sync"
)

type worker struct {
	log *slog.Logger

	roundList *roundList

	retriever Retriever
}

func (w *worker) Run(wg *sync.WaitGroup, requests <-chan retrieveRequest) {
	defer wg.Done()

	for {
		select {
		case <-w.roundList.Ctx.Done():
			if !w.advance() {
				return
			}

		case req := <-requests:
			if w.roundList.before(req.Height, req.Round) {
				// Stale; the pool has already discarded it.
				continue
			}

			if w.roundList.after(req.Height, req.Round) {
				if !w.advance() {
					return
				}

				if w.roundList.before(req.Height, req.Round) {
					continue
				}
				if w.roundList.after(req.Height, req.Round) {
					w.log.Warn(
						"Dropping retrieve request for future round",
						"req_h", req.Height, "req_r", req.Round,
						"h", w.roundList.Height, "r", w.roundList.Round,
					)
					continue
				}
			}

			w.retrieve(req)
		}
	}
}

// advance moves w to the latest known round.
// It reports false if the worker must stop.
func (w *worker) advance() bool {
	latest, quit := w.roundList.fastForward()
	w.roundList = latest
	if quit {
		w.log.Info("Stopping due to context cancellation", "cause", context.Cause(latest.Ctx))
		return false
	}
	return true
}

func (w *worker) retrieve(req retrieveRequest) {
	req.Result.Txs, req.Result.Err = w.retriever.Retrieve(w.roundList.Ctx, req.Digest)
	close(req.Ready)
}
