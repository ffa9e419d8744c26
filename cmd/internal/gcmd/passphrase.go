// Package gcmd contains helpers shared by the command line programs.
package gcmd

import (
	"crypto/ed25519"
	"fmt"

	"github.com/gordian-engine/gmempool/gcrypto"
	"github.com/gordian-engine/gmempool/gcrypto/gsecp256k1"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"golang.org/x/crypto/blake2b"
)

// Key types accepted by [SignerFromInsecurePassphrase].
const (
	KeyTypeEd25519   = "ed25519"
	KeyTypeSecp256k1 = "secp256k1"
)

// SignerFromInsecurePassphrase deterministically derives a validator key.
// The passphrase is the only secret,
// so this is only suitable for local and test networks.
func SignerFromInsecurePassphrase(keyType, prefix, insecurePassphrase string) (gcrypto.Signer, error) {
	seed := passphraseSeed(prefix + keyType + "|" + insecurePassphrase)

	switch keyType {
	case KeyTypeEd25519:
		return gcrypto.NewEd25519Signer(ed25519.NewKeyFromSeed(seed)), nil
	case KeyTypeSecp256k1:
		return gsecp256k1.NewSigner(seed), nil
	default:
		return nil, fmt.Errorf("unknown key type %q (want %q or %q)", keyType, KeyTypeEd25519, KeyTypeSecp256k1)
	}
}

// Libp2pKeyFromInsecurePassphrase derives the network identity key.
// It is independent of the validator key derived from the same passphrase.
func Libp2pKeyFromInsecurePassphrase(prefix, insecurePassphrase string) (libp2pcrypto.PrivKey, error) {
	seed := passphraseSeed("network|" + prefix + insecurePassphrase)

	privKey := ed25519.NewKeyFromSeed(seed)

	priv, _, err := libp2pcrypto.KeyPairFromStdKey(&privKey)
	if err != nil {
		return nil, err
	}

	return priv, nil
}

func passphraseSeed(s string) []byte {
	seed := blake2b.Sum256([]byte(s))
	return seed[:]
}
