package gwatchdog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gordian-engine/gmempool/gwatchdog"
	"github.com/gordian-engine/gmempool/internal/gtest"
	"github.com/stretchr/testify/require"
)

type diskFullError struct{}

func (diskFullError) Error() string { return "disk full" }

func TestWatchdog_Terminate_normal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	// The returned context is of course not canceled immediately.
	require.NoError(t, wCtx.Err())
	require.False(t, gwatchdog.IsTermination(wCtx))

	// Calling Terminate directly cancels the context.
	w.Terminate(diskFullError{})
	require.Error(t, wCtx.Err())
	require.True(t, gwatchdog.IsTermination(wCtx))

	cause := context.Cause(wCtx)
	require.Equal(t, gwatchdog.ForcedTerminationError{Cause: diskFullError{}}, cause)

	// The original error is reachable through the cause.
	require.ErrorAs(t, cause, new(diskFullError))

	// Calling a second time does not change the cause.
	w.Terminate(errors.New("again"))
	require.Equal(t, cause, context.Cause(wCtx))
}

func TestWatchdog_Terminate_nilCausePanics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, _ := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	require.Panics(t, func() {
		w.Terminate(nil)
	})
}

func TestWatchdog_Terminate_afterParentCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	// If the parent is canceled first, and then terminate is called...
	cancel()
	w.Terminate(errors.New("late"))

	// The watchdog context is canceled but does not match IsTermination.
	require.Error(t, wCtx.Err())
	require.False(t, gwatchdog.IsTermination(wCtx))
}

func TestWatchdog_monitor_notAcceptingSignalCausesTermination(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	cfg := gwatchdog.MonitorConfig{
		Name:     t.Name(),
		Interval: 100 * time.Microsecond, Jitter: 10 * time.Microsecond,

		// The response time is practically instant.
		ResponseTimeout: 50 * time.Microsecond,
	}
	_ = w.Monitor(ctx, cfg)

	_ = gtest.ReceiveSoon(t, wCtx.Done())
	require.True(t, gwatchdog.IsTermination(wCtx))

	var ftr gwatchdog.FailureToRespondError
	require.ErrorAs(t, context.Cause(wCtx), &ftr)
	require.Equal(t, t.Name(), ftr.SubsystemName)
}

func TestWatchdog_monitor_acceptingSignalWithoutRespondingCausesTermination(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	cfg := gwatchdog.MonitorConfig{
		Name:     t.Name(),
		Interval: 100 * time.Microsecond, Jitter: 10 * time.Microsecond,

		// The response time is short enough to reasonably sleep past.
		ResponseTimeout: time.Duration(gtest.ScaleMs(150)),
	}
	sigCh := w.Monitor(ctx, cfg)

	// Accept the signal successfully.
	_ = gtest.ReceiveSoon(t, sigCh)

	// But sleep for longer than the response timeout, without responding.
	gtest.Sleep(gtest.ScaleMs(160))

	require.Error(t, wCtx.Err())
	require.True(t, gwatchdog.IsTermination(wCtx))
}

func TestWatchdog_monitor_respondingOnTimeDoesNotCauseTermination(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	cfg := gwatchdog.MonitorConfig{
		Name:     t.Name(),
		Interval: 100 * time.Microsecond, Jitter: 10 * time.Microsecond,

		ResponseTimeout: time.Duration(gtest.ScaleMs(150)),
	}
	sigCh := w.Monitor(ctx, cfg)

	sig := gtest.ReceiveSoon(t, sigCh)
	close(sig.Alive)
	require.NoError(t, wCtx.Err())

	// The interval timer starts again after a response.
	sig = gtest.ReceiveSoon(t, sigCh)
	close(sig.Alive)
	require.NoError(t, wCtx.Err())
}

func TestWatchdog_Monitor_invalidConfigPanics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, _ := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	require.Panics(t, func() {
		_ = w.Monitor(ctx, gwatchdog.MonitorConfig{
			Name:     "bad",
			Interval: time.Millisecond, Jitter: time.Second,
			ResponseTimeout: time.Millisecond,
		})
	})
}

func TestNopWatchdog_monitor(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewNopWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	cfg := gwatchdog.MonitorConfig{
		// The config is still validated, so we have to provide valid values.
		Name:     t.Name(),
		Interval: 100 * time.Microsecond, Jitter: 10 * time.Microsecond,
		ResponseTimeout: time.Millisecond,
	}

	// Monitor returns a nil channel,
	// so it will never be chosen in a select statement.
	require.Nil(t, w.Monitor(wCtx, cfg))
}

func TestNopWatchdog_Terminate(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewNopWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	require.NoError(t, wCtx.Err())

	w.Terminate(errors.New("testing"))
	require.Error(t, wCtx.Err())
	require.True(t, gwatchdog.IsTermination(wCtx))
}
