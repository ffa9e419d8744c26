// Package gbatch contains the batch data types shared across the mempool:
// transactions, batch digests, the hash scheme producing digests,
// and the wire codec for messages exchanged between validators.
package gbatch

import (
	"encoding/hex"
	"fmt"
	"log/slog"
)

// DigestSize is the size in bytes of a [Digest].
const DigestSize = 32

// Digest is the fixed-size hash of a serialized batch.
// It is both the storage key for the batch
// and the value that consensus orders.
type Digest [DigestSize]byte

// String returns the lowercase hex form of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether every byte of d is zero.
// The zero digest is never produced by hashing a real batch in practice,
// so it is used as the "no value" sentinel by consensus adapters.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// LogValue implements [slog.LogValuer],
// logging the first eight bytes in hex.
func (d Digest) LogValue() slog.Value {
	return slog.StringValue(hex.EncodeToString(d[:8]))
}

// ParseDigest parses the hex representation produced by [Digest.String].
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != 2*DigestSize {
		return d, fmt.Errorf("digest hex must be %d characters; got %d", 2*DigestSize, len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("failed to decode digest hex: %w", err)
	}
	return d, nil
}

// DigestFromBytes copies b into a Digest.
// It returns an error if b is not exactly [DigestSize] bytes.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, fmt.Errorf("digest must be %d bytes; got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}
