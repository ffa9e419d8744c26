package gbatch

import (
	"golang.org/x/crypto/blake2b"
)

// HashScheme computes the digest of a serialized batch.
//
// Implementations must be deterministic:
// identical input must always produce an identical digest.
type HashScheme interface {
	Digest(serialized []byte) Digest
}

// Blake2bHashScheme is the default [HashScheme], using BLAKE2b-256.
type Blake2bHashScheme struct{}

func (Blake2bHashScheme) Digest(serialized []byte) Digest {
	return blake2b.Sum256(serialized)
}
