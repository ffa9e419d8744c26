// Package glog contains small helpers for structured logging with log/slog.
package glog

import (
	"encoding/hex"
	"log/slog"
)

// Hex wraps a byte slice so it is logged as a hex string
// rather than as an escaped Unicode string.
type Hex []byte

func (v Hex) LogValue() slog.Value {
	return slog.StringValue(hex.EncodeToString(v))
}

// ShortHex logs only the first eight bytes of the slice in hex.
// Public keys and digests are long enough that the full value
// makes log lines hard to scan.
type ShortHex []byte

func (v ShortHex) LogValue() slog.Value {
	b := []byte(v)
	if len(b) > 8 {
		b = b[:8]
	}
	return slog.StringValue(hex.EncodeToString(b))
}
