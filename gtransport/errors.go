package gtransport

import (
	"errors"
	"fmt"
)

// ErrRejected is wrapped by errors reported
// when the receiving peer declined to acknowledge a message.
var ErrRejected = errors.New("message rejected by peer")

// UnknownAddressError is returned through a handle
// when the transport cannot interpret or reach an address at all.
type UnknownAddressError struct {
	Addr string
	Err  error
}

func (e UnknownAddressError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unknown address %q", e.Addr)
	}
	return fmt.Sprintf("unknown address %q: %v", e.Addr, e.Err)
}

func (e UnknownAddressError) Unwrap() error {
	return e.Err
}
