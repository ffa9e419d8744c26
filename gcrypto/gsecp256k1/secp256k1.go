// Package gsecp256k1 provides a secp256k1 implementation of [gcrypto.PubKey]
// and [gcrypto.Signer], for committees whose authorities
// are identified by secp256k1 keys instead of ed25519.
package gsecp256k1

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/gordian-engine/gmempool/gcrypto"
)

const typeName = "secp256k"

var _ gcrypto.Signer = Signer{}
var _ gcrypto.PubKey = PubKey{}

// Register registers secp256k1 public keys with reg.
func Register(reg *gcrypto.Registry) {
	reg.Register(typeName, PubKey{}, NewPubKey)
}

// PubKey wraps a parsed secp256k1 public key.
// Its byte form is the 33-byte compressed encoding.
type PubKey struct {
	k *secp256k1.PublicKey
}

// NewPubKey parses a compressed or uncompressed secp256k1 public key.
func NewPubKey(b []byte) (gcrypto.PubKey, error) {
	k, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse secp256k1 public key: %w", err)
	}
	return PubKey{k: k}, nil
}

func (k PubKey) PubKeyBytes() []byte {
	return k.k.SerializeCompressed()
}

func (k PubKey) Equal(other gcrypto.PubKey) bool {
	o, ok := other.(PubKey)
	return ok && k.k.IsEqual(o.k)
}

// Verify checks a DER-encoded signature over the SHA-256 hash of msg.
func (k PubKey) Verify(msg, sig []byte) bool {
	s, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	h := sha256.Sum256(msg)
	return s.Verify(h[:], k.k)
}

func (k PubKey) TypeName() string {
	return typeName
}

type Signer struct {
	priv *secp256k1.PrivateKey
	pub  PubKey
}

// NewSigner returns a Signer for the 32-byte private key scalar b.
func NewSigner(b []byte) Signer {
	priv := secp256k1.PrivKeyFromBytes(b)
	return Signer{
		priv: priv,
		pub:  PubKey{k: priv.PubKey()},
	}
}

func (s Signer) PubKey() gcrypto.PubKey {
	return s.pub
}

func (s Signer) Sign(_ context.Context, input []byte) ([]byte, error) {
	h := sha256.Sum256(input)
	return ecdsa.Sign(s.priv, h[:]).Serialize(), nil
}
