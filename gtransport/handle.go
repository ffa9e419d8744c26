package gtransport

import (
	"context"
	"sync"
)

// Handle is the general purpose [DeliveryHandle] implementation
// used by the transports in this module.
//
// The transport calls Resolve exactly when it knows the outcome;
// later calls to Resolve are ignored.
type Handle struct {
	done chan struct{}

	once sync.Once
	err  error

	cancel context.CancelFunc
}

// NewHandle returns an unresolved Handle.
// The cancel function, if non-nil, is called when the handle is canceled,
// so that the transport can abandon any in-flight attempt.
func NewHandle(cancel context.CancelFunc) *Handle {
	return &Handle{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// FailedHandle returns a handle that is already resolved with err.
func FailedHandle(err error) *Handle {
	h := NewHandle(nil)
	h.Resolve(err)
	return h
}

// Resolve sets the outcome of the handle and closes its Done channel.
// Only the first call has any effect.
func (h *Handle) Resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
	h.Resolve(context.Canceled)
}
