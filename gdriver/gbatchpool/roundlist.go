package gbatchpool

import (
	"context"
	"errors"
)

// roundList is a singly linked list of rounds,
// appended only by the pool kernel.
// Each round's context is canceled with errRoundOver
// after its successor is linked.
type roundList struct {
	Height uint64
	Round  uint32

	Ctx context.Context

	Next *roundList
}

// before reports whether (h, r) precedes the round of l.
func (l *roundList) before(h uint64, r uint32) bool {
	return h < l.Height || (h == l.Height && r < l.Round)
}

// after reports whether (h, r) follows the round of l.
func (l *roundList) after(h uint64, r uint32) bool {
	return h > l.Height || (h == l.Height && r > l.Round)
}

// fastForward follows the list to its latest round.
// quit is true if a context in the list was canceled
// for any reason other than the end of its round.
func (l *roundList) fastForward() (latest *roundList, quit bool) {
	for {
		select {
		case <-l.Ctx.Done():
			if context.Cause(l.Ctx) != errRoundOver {
				return l, true
			}
			l = l.Next
		default:
			return l, false
		}
	}
}

var errRoundOver = errors.New("round over")
