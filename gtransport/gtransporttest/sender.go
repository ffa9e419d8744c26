package gtransporttest

import (
	"bytes"
	"context"

	"github.com/gordian-engine/gmempool/gtransport"
)

// SendCall is a single recorded call to [*ManualSender.Send].
type SendCall struct {
	Addr string
	Msg  []byte

	// The handle returned from Send.
	// The test resolves it to simulate the peer's response.
	Handle *gtransport.Handle
}

// ManualSender is a [gtransport.ReliableSender]
// whose handles are resolved by the test.
// Every call to Send is published on Calls.
type ManualSender struct {
	Calls chan SendCall
}

// NewManualSender returns a ManualSender whose Calls channel
// has the given buffer size.
// Send blocks when the buffer is full.
func NewManualSender(bufSize int) *ManualSender {
	return &ManualSender{
		Calls: make(chan SendCall, bufSize),
	}
}

func (s *ManualSender) Send(ctx context.Context, addr string, msg []byte) gtransport.DeliveryHandle {
	h := gtransport.NewHandle(nil)
	select {
	case <-ctx.Done():
		h.Resolve(context.Cause(ctx))
	case s.Calls <- SendCall{Addr: addr, Msg: bytes.Clone(msg), Handle: h}:
	}
	return h
}
