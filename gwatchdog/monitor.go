package gwatchdog

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

type MonitorConfig struct {
	// The name of the subsystem being monitored, for reporting purposes.
	Name string

	// The watchdog polls the subsystem every Interval + [-Jitter, +Jitter) duration.
	Interval, Jitter time.Duration

	// If the subsystem does not both accept the signal
	// and close its Alive channel within ResponseTimeout,
	// the watchdog terminates the pipeline.
	ResponseTimeout time.Duration
}

func (c MonitorConfig) validate() error {
	var err error
	if c.Name == "" {
		err = errors.Join(err, errors.New("MonitorConfig.Name must not be empty"))
	}

	if c.Interval <= 0 {
		err = errors.Join(err, errors.New("MonitorConfig.Interval must be positive"))
	}

	if c.Jitter <= 0 {
		err = errors.Join(err, errors.New("MonitorConfig.Jitter must be positive"))
	}

	if c.Jitter > c.Interval {
		err = errors.Join(err, errors.New("MonitorConfig.Jitter must not exceed MonitorConfig.Interval"))
	}

	if c.ResponseTimeout <= 0 {
		err = errors.Join(err, errors.New("MonitorConfig.ResponseTimeout must be positive"))
	}

	return err
}

// monitor polls a single subsystem until ctx is done
// or the subsystem fails to respond.
func monitor(
	ctx context.Context,
	log *slog.Logger,
	cfg MonitorConfig,
	wg *sync.WaitGroup,
	sigCh chan<- Signal,
	cancel context.CancelCauseFunc,
) {
	defer wg.Done()

	// Per-monitor RNG avoids contention on the global source.
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	for {
		j := rng.Int64N(int64(2*cfg.Jitter)) - int64(cfg.Jitter)

		timer := time.NewTimer(cfg.Interval + time.Duration(j))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if !checkSubsystem(ctx, cfg, sigCh) {
				if ctx.Err() != nil {
					return
				}

				log.Warn("Subsystem failed to respond", "timeout", cfg.ResponseTimeout)
				cancel(FailureToRespondError{
					SubsystemName: cfg.Name,
					Timeout:       cfg.ResponseTimeout,
				})
				return
			}
		}
	}
}

// checkSubsystem sends one signal and waits for the response.
// It reports false if the subsystem did not respond in time
// or if ctx finished first.
func checkSubsystem(
	ctx context.Context,
	cfg MonitorConfig,
	sigCh chan<- Signal,
) (ok bool) {
	alive := make(chan struct{})
	sig := Signal{Alive: alive}

	timer := time.NewTimer(cfg.ResponseTimeout)
	defer timer.Stop()

	// The signal must be accepted within the timeout.
	select {
	case <-ctx.Done():
		return false
	case sigCh <- sig:
	case <-timer.C:
		return false
	}

	// And the response must arrive within the same timeout.
	select {
	case <-ctx.Done():
		return false
	case <-alive:
		return true
	case <-timer.C:
		// The runtime may have chosen the timer at random
		// when both cases were ready.
		select {
		case <-alive:
			return true
		default:
			return false
		}
	}
}
