// Package gcommittee contains the stake-weighted committee model:
// the fixed set of authorities for an epoch,
// and the Byzantine quorum threshold derived from their stake.
package gcommittee

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/gordian-engine/gmempool/gcrypto"
)

// Authority is a single committee member.
type Authority struct {
	PubKey gcrypto.PubKey

	// Voting weight of the authority.
	Stake uint64

	// Network address other authorities use to reach this authority.
	// The format is transport-specific;
	// the libp2p transport expects a multiaddr ending in /p2p/<peer ID>.
	Addr string
}

// Target is an authority to which a batch is broadcast.
type Target struct {
	PubKey gcrypto.PubKey
	Addr   string
}

// Committee is an immutable snapshot of the authorities for one epoch.
//
// A Committee never changes after [New] returns,
// so its methods are safe for concurrent use without locking.
type Committee struct {
	epoch uint64

	// Sorted by public key bytes, so that iteration order
	// (and therefore index assignment) is deterministic.
	authorities []Authority

	// Keyed by string(PubKeyBytes()), value is index into authorities.
	byKey map[string]int

	totalStake uint64
	threshold  uint64
}

// New returns a new Committee for the given epoch.
// It returns an error if authorities is empty,
// if any public key occurs twice,
// or if the total stake is zero or overflows a uint64.
func New(epoch uint64, authorities []Authority) (*Committee, error) {
	if len(authorities) == 0 {
		return nil, errors.New("committee must have at least one authority")
	}

	sorted := slices.Clone(authorities)
	slices.SortFunc(sorted, func(a, b Authority) int {
		return bytes.Compare(a.PubKey.PubKeyBytes(), b.PubKey.PubKeyBytes())
	})

	c := &Committee{
		epoch:       epoch,
		authorities: sorted,
		byKey:       make(map[string]int, len(sorted)),
	}

	for i, a := range sorted {
		k := string(a.PubKey.PubKeyBytes())
		if _, ok := c.byKey[k]; ok {
			return nil, DuplicateAuthorityError{PubKey: a.PubKey}
		}
		c.byKey[k] = i

		if a.Stake > math.MaxUint64-c.totalStake {
			return nil, errors.New("total committee stake overflows uint64")
		}
		c.totalStake += a.Stake
	}

	if c.totalStake == 0 {
		return nil, errors.New("total committee stake must be positive")
	}

	c.threshold = quorumThreshold(c.totalStake)

	return c, nil
}

// quorumThreshold returns floor(2*total/3) + 1,
// computed without overflowing for totals above MaxUint64/2.
//
// With total = 3f + 1 + k for 0 <= k < 3,
// the result is 2f + 1 + k = total - f.
func quorumThreshold(total uint64) uint64 {
	q, r := total/3, total%3
	return 2*q + (2*r)/3 + 1
}

// Epoch returns the epoch number the committee was created for.
func (c *Committee) Epoch() uint64 {
	return c.epoch
}

// Size returns the number of authorities in the committee.
func (c *Committee) Size() int {
	return len(c.authorities)
}

// TotalStake returns the sum of every authority's stake.
func (c *Committee) TotalStake() uint64 {
	return c.totalStake
}

// QuorumThreshold returns the minimum accumulated stake
// that constitutes a Byzantine quorum: floor(2*total/3) + 1.
func (c *Committee) QuorumThreshold() uint64 {
	return c.threshold
}

// Stake returns the stake of the authority with the given public key.
// Unknown keys have no voting power and report zero.
func (c *Committee) Stake(pubKey gcrypto.PubKey) uint64 {
	i, ok := c.byKey[string(pubKey.PubKeyBytes())]
	if !ok {
		return 0
	}
	return c.authorities[i].Stake
}

// Index returns the position of pubKey in the committee's deterministic ordering.
// Indices are in the range [0, Size()).
func (c *Committee) Index(pubKey gcrypto.PubKey) (int, bool) {
	i, ok := c.byKey[string(pubKey.PubKeyBytes())]
	return i, ok
}

// Address returns the network address of the authority with the given public key.
func (c *Committee) Address(pubKey gcrypto.PubKey) (string, bool) {
	i, ok := c.byKey[string(pubKey.PubKeyBytes())]
	if !ok {
		return "", false
	}
	return c.authorities[i].Addr, true
}

// BroadcastTargets returns every authority except self,
// in the committee's deterministic ordering.
func (c *Committee) BroadcastTargets(self gcrypto.PubKey) []Target {
	out := make([]Target, 0, len(c.authorities))
	for _, a := range c.authorities {
		if a.PubKey.Equal(self) {
			continue
		}
		out = append(out, Target{PubKey: a.PubKey, Addr: a.Addr})
	}
	return out
}

// Authorities returns a copy of the committee's authorities
// in the committee's deterministic ordering.
func (c *Committee) Authorities() []Authority {
	return slices.Clone(c.authorities)
}

// DuplicateAuthorityError is returned from [New]
// when the same public key appears more than once.
type DuplicateAuthorityError struct {
	PubKey gcrypto.PubKey
}

func (e DuplicateAuthorityError) Error() string {
	return fmt.Sprintf("duplicate authority with public key %x", e.PubKey.PubKeyBytes())
}
