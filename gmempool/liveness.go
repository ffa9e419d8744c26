package gmempool

import (
	"context"
	"log/slog"
	"time"

	"github.com/gordian-engine/gmempool/gwatchdog"
)

// kernelMonitorConfig returns the watchdog settings for a pipeline kernel.
// A kernel blocked on a full downstream queue still answers signals,
// so only a kernel stuck inside a call (such as a store write) fails to respond.
func kernelMonitorConfig(name string) gwatchdog.MonitorConfig {
	return gwatchdog.MonitorConfig{
		Name:            name,
		Interval:        10 * time.Second,
		Jitter:          time.Second,
		ResponseTimeout: 30 * time.Second,
	}
}

// sendAnsweringSignals sends val on out,
// answering watchdog signals and logging prolonged blocking while it waits.
// It reports false if ctx finished first.
func sendAnsweringSignals[T any](
	ctx context.Context, log *slog.Logger,
	out chan<- T, val T,
	sigCh <-chan gwatchdog.Signal,
	during string,
	tolerableBlockDuration time.Duration,
) (sent bool) {
	// Fast path for the common case of an available buffer slot.
	select {
	case out <- val:
		return true
	default:
	}

	start := time.Now()
	timer := time.NewTimer(tolerableBlockDuration)
	defer timer.Stop()

	blocked := false
	for {
		select {
		case <-ctx.Done():
			log.Info(
				"Context canceled while "+during,
				"cause", context.Cause(ctx),
				"blocked_duration", time.Since(start),
			)
			return false

		case out <- val:
			if blocked {
				log.Info("Unblocked send while "+during, "blocked_duration", time.Since(start))
			}
			return true

		case sig := <-sigCh:
			close(sig.Alive)

		case <-timer.C:
			blocked = true
			log.Info("Blocked on send while "+during, "dur", tolerableBlockDuration)
		}
	}
}

// monitorKernel registers a kernel with wd.
// A nil watchdog disables monitoring.
func monitorKernel(ctx context.Context, wd *gwatchdog.Watchdog, name string) <-chan gwatchdog.Signal {
	if wd == nil {
		return nil
	}
	return wd.Monitor(ctx, kernelMonitorConfig(name))
}
