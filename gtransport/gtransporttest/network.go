// Package gtransporttest contains in-process transports for tests.
package gtransporttest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordian-engine/gmempool/gtransport"
)

// ErrUnreachable is the error a [Network] reports
// for sends to an address marked unreachable.
var ErrUnreachable = errors.New("peer unreachable")

// Network is an in-process set of handlers addressed by string.
// Its Send method satisfies [gtransport.ReliableSender],
// delivering each message on a new goroutine
// and resolving the handle with the handler's result.
//
// Tests can hold delivery to an address with [*Network.Hold],
// to model a slow peer,
// or mark an address unreachable with [*Network.SetUnreachable].
type Network struct {
	ctx context.Context
	log *slog.Logger

	mu          sync.Mutex
	handlers    map[string]gtransport.Handler
	gates       map[string]chan struct{}
	unreachable map[string]bool
	delivered   map[string]int

	wg sync.WaitGroup
}

// NewNetwork returns a new Network.
// Pending deliveries are abandoned when ctx is canceled;
// call Wait after canceling to ensure every delivery goroutine has returned.
func NewNetwork(ctx context.Context, log *slog.Logger) *Network {
	return &Network{
		ctx: ctx,
		log: log,

		handlers:    map[string]gtransport.Handler{},
		gates:       map[string]chan struct{}{},
		unreachable: map[string]bool{},
		delivered:   map[string]int{},
	}
}

// Wait blocks until every delivery goroutine has returned.
func (n *Network) Wait() {
	n.wg.Wait()
}

// Register sets h as the handler for messages sent to addr.
// It panics if addr is already registered.
func (n *Network) Register(addr string, h gtransport.Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.handlers[addr]; ok {
		panic(fmt.Errorf("BUG: address %q registered twice", addr))
	}
	n.handlers[addr] = h
}

// Hold blocks delivery to addr until a matching call to Release.
func (n *Network) Hold(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.gates[addr]; !ok {
		n.gates[addr] = make(chan struct{})
	}
}

// Release resumes delivery to addr,
// including any messages that were held.
func (n *Network) Release(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if g, ok := n.gates[addr]; ok {
		close(g)
		delete(n.gates, addr)
	}
}

// SetUnreachable controls whether sends to addr fail with [ErrUnreachable].
func (n *Network) SetUnreachable(addr string, unreachable bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.unreachable[addr] = unreachable
}

// Delivered reports how many messages the handler at addr has accepted.
func (n *Network) Delivered(addr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.delivered[addr]
}

func (n *Network) Send(ctx context.Context, addr string, msg []byte) gtransport.DeliveryHandle {
	n.mu.Lock()
	h, ok := n.handlers[addr]
	n.mu.Unlock()
	if !ok {
		return gtransport.FailedHandle(gtransport.UnknownAddressError{Addr: addr})
	}

	// The sender may reuse msg after Send returns.
	msg = bytes.Clone(msg)

	sendCtx, cancel := context.WithCancel(ctx)
	handle := gtransport.NewHandle(cancel)

	n.wg.Add(1)
	go n.deliver(sendCtx, cancel, addr, h, msg, handle)

	return handle
}

func (n *Network) deliver(
	ctx context.Context, cancel context.CancelFunc,
	addr string, h gtransport.Handler, msg []byte,
	handle *gtransport.Handle,
) {
	defer n.wg.Done()
	defer cancel()

	for {
		n.mu.Lock()
		gate := n.gates[addr]
		unreachable := n.unreachable[addr]
		n.mu.Unlock()

		if unreachable {
			handle.Resolve(ErrUnreachable)
			return
		}

		if gate == nil {
			break
		}

		select {
		case <-n.ctx.Done():
			handle.Resolve(context.Cause(n.ctx))
			return
		case <-ctx.Done():
			handle.Resolve(context.Cause(ctx))
			return
		case <-gate:
			// Recheck state, since the address may have been held again.
		}
	}

	if err := h.HandleMessage(ctx, msg); err != nil {
		n.log.Debug("Handler rejected message", "addr", addr, "err", err)
		handle.Resolve(fmt.Errorf("%w: %w", gtransport.ErrRejected, err))
		return
	}

	n.mu.Lock()
	n.delivered[addr]++
	n.mu.Unlock()

	handle.Resolve(nil)
}
