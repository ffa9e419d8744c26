// Package gtransport defines the network boundary of the mempool:
// reliable point-to-point delivery with a per-message completion handle,
// and a handler interface for inbound messages.
//
// Implementations live in subpackages:
// gtlibp2p for a libp2p-backed transport,
// and gtransporttest for an in-process transport used in tests.
package gtransport

import (
	"context"
)

// ReliableSender sends messages to peers.
//
// Send never blocks on the network.
// It returns immediately with a [DeliveryHandle]
// that resolves once the peer has acknowledged the message,
// or once the implementation gives up on delivery.
// An address that cannot be used at all yields a handle that is already resolved with an error.
type ReliableSender interface {
	Send(ctx context.Context, addr string, msg []byte) DeliveryHandle
}

// DeliveryHandle is a pending acknowledgement of one message to one peer.
//
// Dropping a handle, or calling Cancel,
// stops the local wait for the acknowledgement;
// it never retracts a message the peer may already have received.
type DeliveryHandle interface {
	// Done is closed when the handle resolves.
	Done() <-chan struct{}

	// Err reports the outcome once Done is closed.
	// A nil error means the peer acknowledged the message.
	// Calling Err before Done is closed returns nil.
	Err() error

	// Cancel stops any further delivery attempts.
	// If the handle has not resolved yet, it resolves with [context.Canceled].
	Cancel()
}

// Handler processes an inbound message.
//
// A nil return means the message was accepted
// and the transport acknowledges it to the sender.
// A non-nil return means the message was rejected
// and the sender's handle resolves with an error.
//
// Transports pass a msg slice that is not reused,
// so the handler may retain it.
type Handler interface {
	HandleMessage(ctx context.Context, msg []byte) error
}

// HandlerFunc adapts an ordinary function to a [Handler].
type HandlerFunc func(ctx context.Context, msg []byte) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg []byte) error {
	return f(ctx, msg)
}
