package gwatchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordian-engine/gmempool/internal/gchan"
)

type Watchdog struct {
	log *slog.Logger

	cancel          context.CancelCauseFunc
	monitorRequests chan monitorRequest

	// We cannot know up front how many monitors the watchdog will have,
	// so a WaitGroup tracks them all.
	wg sync.WaitGroup
}

// NewWatchdog returns a new Watchdog and a context derived from ctx.
//
// The returned context is canceled when a subsystem registered through [*Watchdog.Monitor]
// fails to respond to a signal within its response timeout,
// or upon a call to [*Watchdog.Terminate].
func NewWatchdog(ctx context.Context, log *slog.Logger) (*Watchdog, context.Context) {
	wCtx, cancel := context.WithCancelCause(ctx)
	w := &Watchdog{
		log:             log,
		cancel:          cancel,
		monitorRequests: make(chan monitorRequest), // Unbuffered since requests are synchronous.
	}
	w.wg.Add(1)
	go w.kernel(ctx, wCtx, cancel)
	return w, wCtx
}

// NewNopWatchdog returns a new Watchdog that disregards calls to [*Watchdog.Monitor]
// but still respects calls to Terminate.
//
// It is intended for tests that exercise termination
// without caring about liveness monitoring.
func NewNopWatchdog(ctx context.Context, log *slog.Logger) (*Watchdog, context.Context) {
	wCtx, cancel := context.WithCancelCause(ctx)
	w := &Watchdog{
		log:    log,
		cancel: cancel,
		// The nil monitorRequests channel causes Monitor to return a nil channel.
	}
	w.wg.Add(1)
	go w.kernel(ctx, wCtx, cancel)
	return w, wCtx
}

// Wait blocks until w's background goroutines complete.
// The goroutines are tied to the lifecycle of the context passed to [NewWatchdog],
// so a call to Terminate alone does not unblock Wait.
func (w *Watchdog) Wait() {
	w.wg.Wait()
}

// Terminate cancels the watchdog context
// with a [ForcedTerminationError] wrapping cause.
// Only the first termination is recorded as the context cause.
func (w *Watchdog) Terminate(cause error) {
	if cause == nil {
		panic(errors.New("BUG: Terminate called with nil cause"))
	}
	w.log.Warn("Terminating", "cause", cause)
	w.cancel(ForcedTerminationError{Cause: cause})
}

func (w *Watchdog) kernel(rootCtx, wCtx context.Context, cancel context.CancelCauseFunc) {
	defer w.wg.Done()

	for {
		select {
		case <-rootCtx.Done():
			w.log.Info("Stopping due to root context cancellation", "cause", context.Cause(rootCtx))
			return
		case req := <-w.monitorRequests:
			sigCh := make(chan Signal) // Unbuffered because it must be synchronous.
			w.wg.Add(1)

			// The monitor runs off the watchdog context,
			// so that it also stops after a termination.
			go monitor(
				wCtx,
				w.log.With("target", req.Cfg.Name),
				req.Cfg,
				&w.wg, sigCh, cancel,
			)

			req.Resp <- sigCh
		}
	}
}

// monitorRequest is sent from a goroutine calling [*Watchdog.Monitor]
// to the watchdog's kernel goroutine.
type monitorRequest struct {
	Cfg MonitorConfig

	Resp chan (<-chan Signal)
}

// Monitor starts liveness monitoring for an individual subsystem.
// The subsystem must receive from the returned channel in its main loop
// and close the [Signal.Alive] channel promptly.
//
// A value arrives on the returned channel every
// Interval + [-Jitter, +Jitter) duration.
//
// Monitor returns nil if w is a nop watchdog,
// or if ctx is canceled before the monitor starts.
// Receiving from a nil channel blocks forever,
// so callers may select on the result unconditionally.
func (w *Watchdog) Monitor(ctx context.Context, cfg MonitorConfig) <-chan Signal {
	// Validate the config regardless of whether the watchdog is performing monitoring.
	if err := cfg.validate(); err != nil {
		panic(fmt.Errorf("BUG: (*Watchdog).Monitor: MonitorConfig is invalid: %w", err))
	}

	if w.monitorRequests == nil {
		return nil
	}

	req := monitorRequest{
		Cfg:  cfg,
		Resp: make(chan (<-chan Signal), 1),
	}

	ch, _ := gchan.ReqResp(
		ctx, w.log,
		w.monitorRequests, req,
		req.Resp,
		"requesting new monitor",
	)
	return ch
}

// Signal is the value delivered on a channel returned by [*Watchdog.Monitor].
type Signal struct {
	// Close Alive to indicate the subsystem is responsive.
	// Every signal has a non-nil, open Alive channel.
	Alive chan<- struct{}
}
