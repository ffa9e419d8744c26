package gcommittee

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gordian-engine/gmempool/gcrypto"
)

// Config is the JSON-serializable form of a committee.
//
// Public keys are written as "TYPE:HEX",
// for example "ed25519:b1a138...".
// The type must be registered in the [gcrypto.Registry] passed to [Config.Build].
type Config struct {
	Epoch uint64

	Authorities []AuthorityConfig
}

type AuthorityConfig struct {
	PubKey string
	Stake  uint64
	Addr   string
}

// Build decodes every public key through reg and returns the resulting Committee.
func (c Config) Build(reg *gcrypto.Registry) (*Committee, error) {
	auths := make([]Authority, len(c.Authorities))
	for i, ac := range c.Authorities {
		pk, err := ParsePubKey(reg, ac.PubKey)
		if err != nil {
			return nil, fmt.Errorf("authority at index %d: %w", i, err)
		}

		auths[i] = Authority{
			PubKey: pk,
			Stake:  ac.Stake,
			Addr:   ac.Addr,
		}
	}

	return New(c.Epoch, auths)
}

// ParsePubKey parses a "TYPE:HEX" public key string.
func ParsePubKey(reg *gcrypto.Registry, s string) (gcrypto.PubKey, error) {
	typeName, h, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("public key %q not in TYPE:HEX format", s)
	}

	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key hex: %w", err)
	}

	return reg.Decode(typeName, b)
}

// FormatPubKey returns the "TYPE:HEX" form of pk, as accepted by [ParsePubKey].
func FormatPubKey(pk gcrypto.PubKey) string {
	return pk.TypeName() + ":" + hex.EncodeToString(pk.PubKeyBytes())
}

// Config returns the serializable form of c,
// with authorities in the committee's deterministic order.
func (c *Committee) Config() Config {
	out := Config{
		Epoch:       c.epoch,
		Authorities: make([]AuthorityConfig, len(c.authorities)),
	}
	for i, a := range c.authorities {
		out.Authorities[i] = AuthorityConfig{
			PubKey: FormatPubKey(a.PubKey),
			Stake:  a.Stake,
			Addr:   a.Addr,
		}
	}
	return out
}
