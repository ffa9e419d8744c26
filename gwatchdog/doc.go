// Package gwatchdog provides a Watchdog that owns the lifecycle context
// of the mempool pipeline.
//
// Any component may end the pipeline with [*Watchdog.Terminate],
// supplying the error that caused it;
// the error is then available through [context.Cause] on the watchdog context.
//
// Long-running kernels may also opt in to liveness monitoring with [*Watchdog.Monitor].
// A monitored kernel is polled on an interval with jitter,
// and if it fails to respond within the configured timeout,
// the watchdog terminates the pipeline with a [FailureToRespondError].
package gwatchdog
