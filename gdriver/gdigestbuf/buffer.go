// Package gdigestbuf buffers committed batch digests
// until the consensus engine fetches them for a proposal.
package gdigestbuf

import (
	"context"
	"log/slog"
	"runtime/trace"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/internal/gchan"
)

// Buffer is a validator-local FIFO of digests
// produced by the mempool and not yet proposed.
//
// Methods on Buffer are safe for concurrent use.
type Buffer struct {
	log *slog.Logger

	fetchRequests    chan chan gbatch.Digest
	bufferedRequests chan bufferedRequest

	done chan struct{}
}

type bufferedRequest struct {
	Dst  []gbatch.Digest
	Resp chan []gbatch.Digest
}

// New returns a Buffer that drains digests from in.
//
// Once maxBuffered digests are waiting,
// the buffer stops reading from in until a digest is fetched,
// so that the mempool's pipeline observes backpressure from consensus.
// A non-positive maxBuffered means no limit.
func New(ctx context.Context, log *slog.Logger, in <-chan gbatch.Digest, maxBuffered int) *Buffer {
	b := &Buffer{
		log: log,

		fetchRequests:    make(chan chan gbatch.Digest),
		bufferedRequests: make(chan bufferedRequest),

		done: make(chan struct{}),
	}

	go b.kernel(ctx, in, maxBuffered)

	return b
}

// Wait blocks until all background work for b is finished.
// Initiate a clean shutdown by canceling the context passed to [New].
func (b *Buffer) Wait() {
	<-b.done
}

func (b *Buffer) kernel(ctx context.Context, in <-chan gbatch.Digest, maxBuffered int) {
	defer close(b.done)

	ctx, task := trace.NewTask(ctx, "gdigestbuf.Buffer.kernel")
	defer task.End()

	var q []gbatch.Digest

	for {
		// Reading from a nil channel blocks,
		// which is how the buffer pauses its input when full.
		inCh := in
		if maxBuffered > 0 && len(q) >= maxBuffered {
			inCh = nil
		}

		select {
		case <-ctx.Done():
			b.log.Info(
				"Shutting down due to context cancellation",
				"cause", context.Cause(ctx),
				"n_buffered", len(q),
			)
			return

		case d := <-inCh:
			q = append(q, d)

		case resp := <-b.fetchRequests:
			var d gbatch.Digest
			if len(q) > 0 {
				d = q[0]
				q[0] = gbatch.Digest{}
				q = q[1:]
			}

			// Response channel is one-buffered, so don't select here.
			resp <- d

		case req := <-b.bufferedRequests:
			req.Resp <- append(req.Dst, q...)
		}
	}
}

// Fetch removes and returns the oldest buffered digest.
// If the buffer is empty, Fetch returns the zero digest,
// and the consensus engine proposes an empty payload.
//
// The second result is false if ctx finished before the buffer responded.
func (b *Buffer) Fetch(ctx context.Context) (gbatch.Digest, bool) {
	resp := make(chan gbatch.Digest, 1)
	return gchan.ReqResp(
		ctx, b.log,
		b.fetchRequests, resp,
		resp,
		"fetching digest",
	)
}

// Buffered appends the digests currently in b, oldest first, to dst,
// and returns the result.
func (b *Buffer) Buffered(ctx context.Context, dst []gbatch.Digest) []gbatch.Digest {
	req := bufferedRequest{
		Dst:  dst,
		Resp: make(chan []gbatch.Digest, 1),
	}

	out, _ := gchan.ReqResp(
		ctx, b.log,
		b.bufferedRequests, req,
		req.Resp,
		"requesting buffered digests",
	)

	return out
}
