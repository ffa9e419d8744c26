// Package gcrypto contains the public key and signing abstractions
// used to identify committee members.
//
// The mempool pipeline itself never signs anything;
// public keys are its authority identities.
// Signing is exposed for the consensus-facing adapter in gdriver.
package gcrypto

// PubKey is the public half of an authority's identity key.
type PubKey interface {
	// PubKeyBytes returns the raw key bytes, without any type prefix.
	PubKeyBytes() []byte

	Equal(other PubKey) bool

	Verify(msg, sig []byte) bool

	// TypeName is the name under which the key type
	// is registered in a [Registry].
	TypeName() string
}
