// Package gcryptotest contains deterministic key material for tests.
package gcryptotest

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/gordian-engine/gmempool/gcrypto"
	"golang.org/x/crypto/blake2b"
)

// DeterministicEd25519Signers returns n ed25519 signers
// whose keys depend only on their index.
// Subsequent runs of the same test use the same keys,
// so logs involving keys do not change across runs.
func DeterministicEd25519Signers(n int) []gcrypto.Ed25519Signer {
	out := make([]gcrypto.Ed25519Signer, n)
	for i := range out {
		var idx [8]byte
		binary.BigEndian.PutUint64(idx[:], uint64(i))
		seed := blake2b.Sum256(append([]byte("gcryptotest|ed25519|"), idx[:]...))
		out[i] = gcrypto.NewEd25519Signer(ed25519.NewKeyFromSeed(seed[:]))
	}
	return out
}
