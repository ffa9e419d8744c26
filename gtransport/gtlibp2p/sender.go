package gtlibp2p

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordian-engine/gmempool/gtransport"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
)

// SenderOptions control retries of failed delivery attempts.
type SenderOptions struct {
	// Total number of attempts before the handle resolves with the last error.
	// Zero means 5.
	MaxAttempts int

	// Delay before the first retry, doubling on each subsequent retry.
	// Zero means 50ms.
	InitialBackoff time.Duration

	// Upper bound on the delay between retries.
	// Zero means 2s.
	MaxBackoff time.Duration

	// Timeout for a single attempt, covering connect, write, and the wait for a response.
	// Zero means 10s.
	AttemptTimeout time.Duration
}

func (o SenderOptions) withDefaults() SenderOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 50 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 2 * time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 10 * time.Second
	}
	return o
}

// Sender is a [gtransport.ReliableSender] over libp2p streams.
type Sender struct {
	log *slog.Logger

	h libp2phost.Host

	opts SenderOptions

	wg sync.WaitGroup
}

func NewSender(log *slog.Logger, h libp2phost.Host, opts SenderOptions) *Sender {
	return &Sender{
		log:  log,
		h:    h,
		opts: opts.withDefaults(),
	}
}

// Wait blocks until every in-flight delivery has resolved.
// Cancel the contexts passed to Send to make Wait return promptly.
func (s *Sender) Wait() {
	s.wg.Wait()
}

func (s *Sender) Send(ctx context.Context, addr string, msg []byte) gtransport.DeliveryHandle {
	ai, err := libp2ppeer.AddrInfoFromString(addr)
	if err != nil {
		return gtransport.FailedHandle(gtransport.UnknownAddressError{Addr: addr, Err: err})
	}

	sendCtx, cancel := context.WithCancel(ctx)
	h := gtransport.NewHandle(cancel)

	s.wg.Add(1)
	go s.deliver(sendCtx, cancel, *ai, msg, h)

	return h
}

func (s *Sender) deliver(
	ctx context.Context, cancel context.CancelFunc,
	ai libp2ppeer.AddrInfo, msg []byte,
	h *gtransport.Handle,
) {
	defer s.wg.Done()
	defer cancel()

	log := s.log.With("peer", ai.ID)

	backoff := s.opts.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				h.Resolve(context.Cause(ctx))
				return
			case <-t.C:
			}

			backoff = min(2*backoff, s.opts.MaxBackoff)
		}

		rejected, err := s.attempt(ctx, ai, msg)
		if err == nil {
			h.Resolve(nil)
			return
		}
		if rejected {
			// The peer received and refused the message;
			// sending it again will not change the outcome.
			h.Resolve(err)
			return
		}
		if ctx.Err() != nil {
			h.Resolve(context.Cause(ctx))
			return
		}

		log.Debug("Delivery attempt failed", "attempt", attempt, "err", err)
		lastErr = err
	}

	h.Resolve(fmt.Errorf("delivery failed after %d attempts: %w", s.opts.MaxAttempts, lastErr))
}

func (s *Sender) attempt(ctx context.Context, ai libp2ppeer.AddrInfo, msg []byte) (rejected bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
	defer cancel()

	// Ensure we have a connection.
	if err := s.h.Connect(ctx, ai); err != nil {
		return false, fmt.Errorf("failed to connect to peer: %w", err)
	}

	st, err := s.h.NewStream(ctx, ai.ID, ProtocolID)
	if err != nil {
		return false, fmt.Errorf("failed to open stream to peer: %w", err)
	}
	defer st.Close()

	// Stream reads and writes do not observe the context,
	// so abort the stream if the context ends first.
	stop := context.AfterFunc(ctx, func() { _ = st.Reset() })
	defer stop()

	if err := writeFrame(st, msg); err != nil {
		_ = st.Reset()
		return false, err
	}

	if err := st.CloseWrite(); err != nil {
		_ = st.Reset()
		return false, fmt.Errorf("failed to close stream for write: %w", err)
	}

	var status [1]byte
	if _, err := st.Read(status[:]); err != nil {
		return false, fmt.Errorf("failed to read response status: %w", err)
	}

	switch status[0] {
	case statusAck:
		return false, nil
	case statusNack:
		return true, gtransport.ErrRejected
	default:
		return false, fmt.Errorf("unrecognized response status %x", status[0])
	}
}
