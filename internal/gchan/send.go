// Package gchan contains helpers for context-aware channel operations.
// The helpers log consistently when a context is canceled mid-operation,
// which saves some boilerplate in the pipeline kernels.
package gchan

import (
	"context"
	"log/slog"
	"time"
)

// SendC selects between ctx.Done and sending val to out.
// If ctx is canceled first, SendC logs "Context canceled while " + during
// and reports false.
func SendC[T any](ctx context.Context, log *slog.Logger, out chan<- T, val T, during string) (sent bool) {
	select {
	case <-ctx.Done():
		log.Info("Context canceled while "+during, "cause", context.Cause(ctx))
		return false
	case out <- val:
		return true
	}
}

// SendCLogBlocked behaves like [SendC],
// but if the send does not complete within tolerableBlockDuration,
// it logs once at that point and again when the send finally completes.
//
// Stages use this on their downstream sends,
// so that sustained backpressure is visible in logs without being an error.
func SendCLogBlocked[T any](
	ctx context.Context, log *slog.Logger,
	out chan<- T, val T,
	during string,
	tolerableBlockDuration time.Duration,
) (sent bool) {
	start := time.Now()

	timer := time.NewTimer(tolerableBlockDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		log.Info("Context canceled while "+during, "cause", context.Cause(ctx))
		return false
	case out <- val:
		return true
	case <-timer.C:
		log.Info("Blocked on send while "+during, "dur", tolerableBlockDuration)
	}

	select {
	case <-ctx.Done():
		log.Info(
			"Context canceled while "+during,
			"cause", context.Cause(ctx),
			"blocked_duration", time.Since(start),
		)
		return false
	case out <- val:
		log.Info("Unblocked send while "+during, "blocked_duration", time.Since(start))
		return true
	}
}

// RecvC selects between ctx.Done and receiving from in.
// If ctx is canceled first, RecvC logs "Context canceled while " + during,
// and returns the zero value of T and false.
func RecvC[T any](ctx context.Context, log *slog.Logger, in <-chan T, during string) (val T, received bool) {
	select {
	case <-ctx.Done():
		log.Info("Context canceled while "+during, "cause", context.Cause(ctx))
		return val, false
	case val := <-in:
		return val, true
	}
}

// ReqResp sends reqValue to reqChan and then waits for a value on respChan.
// It is shorthand for a synchronous request to a kernel goroutine.
func ReqResp[T, U any](
	ctx context.Context, log *slog.Logger,
	reqChan chan<- T, reqValue T,
	respChan <-chan U,
	reqRespType string,
) (respVal U, ok bool) {
	if !SendC(ctx, log, reqChan, reqValue, "making "+reqRespType+" request") {
		return respVal, false
	}

	return RecvC(ctx, log, respChan, "receiving "+reqRespType+" response")
}
