package gwatchdog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// IsTermination reports whether ctx was canceled by the watchdog,
// as opposed to cancellation of a parent context.
func IsTermination(ctx context.Context) bool {
	e := context.Cause(ctx)
	if e == nil {
		return false
	}

	return errors.As(e, new(FailureToRespondError)) ||
		errors.As(e, new(ForcedTerminationError))
}

// FailureToRespondError indicates a monitored subsystem failed to respond
// to its watchdog signal within the configured response timeout.
type FailureToRespondError struct {
	SubsystemName string

	Timeout time.Duration
}

func (e FailureToRespondError) Error() string {
	return fmt.Sprintf(
		"%s failed to respond to watchdog signal within %s",
		e.SubsystemName, e.Timeout,
	)
}

// ForcedTerminationError is the context cause set by [*Watchdog.Terminate].
// It unwraps to the error that triggered the termination,
// so callers can inspect the cause with [errors.As].
type ForcedTerminationError struct {
	Cause error
}

func (e ForcedTerminationError) Error() string {
	return "watchdog forced termination: " + e.Cause.Error()
}

func (e ForcedTerminationError) Unwrap() error {
	return e.Cause
}
