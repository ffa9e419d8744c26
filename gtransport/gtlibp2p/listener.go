package gtlibp2p

import (
	"context"
	"log/slog"
	"time"

	"github.com/gordian-engine/gmempool/gtransport"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	libp2pnetwork "github.com/libp2p/go-libp2p/core/network"
)

// ListenerOptions control how inbound streams are read.
type ListenerOptions struct {
	// Frames declaring a larger size are rejected before reading the body.
	// Zero means 16 MiB.
	MaxMessageSize int

	// Deadline for reading a frame, handling it, and writing the response.
	// Zero means 30s.
	StreamTimeout time.Duration
}

func (o ListenerOptions) withDefaults() ListenerOptions {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 16 << 20
	}
	if o.StreamTimeout <= 0 {
		o.StreamTimeout = 30 * time.Second
	}
	return o
}

// Listener dispatches inbound messages on [ProtocolID] to a handler.
type Listener struct {
	// There does not appear to be a way to get
	// a context associated with a particular stream,
	// so the life context of the Listener is stored as a field.
	ctx context.Context

	log *slog.Logger

	h libp2phost.Host

	handler gtransport.Handler

	opts ListenerOptions

	done chan struct{}
}

// NewListener registers a stream handler on h
// and removes it once ctx is canceled.
func NewListener(
	ctx context.Context,
	log *slog.Logger,
	h libp2phost.Host,
	handler gtransport.Handler,
	opts ListenerOptions,
) *Listener {
	l := &Listener{
		ctx:     ctx,
		log:     log,
		h:       h,
		handler: handler,
		opts:    opts.withDefaults(),

		done: make(chan struct{}),
	}

	h.SetStreamHandler(ProtocolID, l.handleStream)
	go l.waitForCancellation()

	return l
}

func (l *Listener) Wait() {
	<-l.done
}

func (l *Listener) waitForCancellation() {
	<-l.ctx.Done()
	l.h.RemoveStreamHandler(ProtocolID)
	close(l.done)
}

func (l *Listener) handleStream(s libp2pnetwork.Stream) {
	defer s.Close()

	ctx, cancel := context.WithTimeout(l.ctx, l.opts.StreamTimeout)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}

	log := l.log.With("peer", s.Conn().RemotePeer())

	msg, err := readFrame(s, l.opts.MaxMessageSize)
	if err != nil {
		log.Debug("Failed to read inbound frame", "err", err)
		_ = s.Reset()
		return
	}

	status := statusAck
	if err := l.handler.HandleMessage(ctx, msg); err != nil {
		log.Debug("Handler rejected inbound message", "err", err)
		status = statusNack
	}

	if _, err := s.Write([]byte{status}); err != nil {
		log.Debug("Failed to write response status", "err", err)
	}
}
