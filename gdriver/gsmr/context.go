// Package gsmr adapts the mempool to a state machine replication engine.
package gsmr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/gcrypto"
	"github.com/gordian-engine/gmempool/gdriver/gbatchpool"
	"github.com/gordian-engine/gmempool/gdriver/gdigestbuf"
	"github.com/gordian-engine/gmempool/gstore"
)

// ErrUnsupported is returned from the methods of [*Context]
// that a replication engine may call but that this adapter does not implement.
var ErrUnsupported = fmt.Errorf("gsmr: %w", errors.ErrUnsupported)

// Config is the set of dependencies for [NewContext].
type Config struct {
	Signer    gcrypto.Signer
	Committee *gcommittee.Committee

	Store      gstore.BatchStore
	HashScheme gbatch.HashScheme

	// Digests committed by the local mempool.
	Digests *gdigestbuf.Buffer

	// Retrieves batches behind proposed digests.
	Batches *gbatchpool.Pool
}

// Context is the replication engine's view of the local validator:
// the digest to propose next, the epoch and its voting rights,
// signing and verification, and the batches behind digests.
type Context struct {
	log *slog.Logger

	cfg Config
}

// VotingRight is the stake of a single authority.
type VotingRight struct {
	PubKey gcrypto.PubKey
	Stake  uint64
}

func NewContext(log *slog.Logger, cfg Config) (*Context, error) {
	if cfg.Signer == nil || cfg.Committee == nil || cfg.Store == nil ||
		cfg.Digests == nil || cfg.Batches == nil {
		return nil, errors.New("gsmr.NewContext: every dependency except HashScheme is required")
	}

	if _, ok := cfg.Committee.Index(cfg.Signer.PubKey()); !ok {
		return nil, fmt.Errorf(
			"signer %x is not a member of the committee for epoch %d",
			cfg.Signer.PubKey().PubKeyBytes(), cfg.Committee.Epoch(),
		)
	}

	if cfg.HashScheme == nil {
		cfg.HashScheme = gbatch.Blake2bHashScheme{}
	}

	return &Context{log: log, cfg: cfg}, nil
}

// Author is the local validator's public key.
func (c *Context) Author() gcrypto.PubKey {
	return c.cfg.Signer.PubKey()
}

// Fetch returns the oldest committed digest not yet proposed.
// It returns the zero digest if there is none,
// in which case the engine still proposes, with an empty payload.
func (c *Context) Fetch(ctx context.Context) gbatch.Digest {
	d, _ := c.cfg.Digests.Fetch(ctx)
	return d
}

// EpochID is the epoch of the committee.
// Epoch transitions are not supported, so this never changes.
func (c *Context) EpochID() uint64 {
	return c.cfg.Committee.Epoch()
}

// VotingRights returns the stake of every authority,
// in the committee's deterministic order.
func (c *Context) VotingRights() []VotingRight {
	auths := c.cfg.Committee.Authorities()
	out := make([]VotingRight, len(auths))
	for i, a := range auths {
		out[i] = VotingRight{PubKey: a.PubKey, Stake: a.Stake}
	}
	return out
}

// QuorumThreshold is the stake needed for a quorum certificate.
func (c *Context) QuorumThreshold() uint64 {
	return c.cfg.Committee.QuorumThreshold()
}

func (c *Context) Hash(msg []byte) gbatch.Digest {
	return c.cfg.HashScheme.Digest(msg)
}

// Sign signs h with the local validator's key.
func (c *Context) Sign(ctx context.Context, h gbatch.Digest) ([]byte, error) {
	return c.cfg.Signer.Sign(ctx, h[:])
}

// Verify checks that sig is author's signature over h.
// It returns [gcrypto.ErrInvalidSignature] if not.
func (c *Context) Verify(author gcrypto.PubKey, h gbatch.Digest, sig []byte) error {
	if !author.Verify(h[:], sig) {
		return gcrypto.ErrInvalidSignature
	}
	return nil
}

// ReadValue loads the batch stored under d.
// A missing batch is reported as found=false, not as an error.
func (c *Context) ReadValue(ctx context.Context, d gbatch.Digest) (value []byte, found bool, err error) {
	value, err = c.cfg.Store.LoadBatch(ctx, d, nil)
	if err != nil {
		if errors.Is(err, gstore.ErrBatchNotFound) {
			return nil, false, nil
		}
		c.log.Warn("Failed to load batch", "digest", d, "err", err)
		return nil, false, err
	}
	return value, true, nil
}

// StoreValue stores value under its digest, which is returned.
func (c *Context) StoreValue(ctx context.Context, value []byte) (gbatch.Digest, error) {
	d := c.cfg.HashScheme.Digest(value)
	if err := c.cfg.Store.SaveBatch(ctx, d, value); err != nil {
		c.log.Warn("Failed to save batch", "digest", d, "size", len(value), "err", err)
		return d, err
	}
	return d, nil
}

// EnterRound discards payload retrievals for earlier rounds.
func (c *Context) EnterRound(ctx context.Context, height uint64, round uint32) {
	c.cfg.Batches.EnterRound(ctx, height, round)
}

// NeedPayload starts retrieving the batch behind a proposed digest.
// The zero digest is an empty payload and needs no retrieval.
func (c *Context) NeedPayload(height uint64, round uint32, d gbatch.Digest) {
	if d.IsZero() {
		return
	}
	c.cfg.Batches.Need(height, round, d)
}

// Payload reports the transactions behind d,
// once they are available.
func (c *Context) Payload(d gbatch.Digest) (txs []gbatch.Transaction, err error, have bool) {
	if d.IsZero() {
		return nil, nil, true
	}
	return c.cfg.Batches.Have(d)
}

// PayloadReady returns a channel that is closed
// once [*Context.Payload] reports having d.
func (c *Context) PayloadReady(d gbatch.Digest) <-chan struct{} {
	if d.IsZero() {
		return closedCh
	}
	return c.cfg.Batches.Ready(d)
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Compare is not supported.
func (c *Context) Compare(*Context) (int, error) {
	return 0, ErrUnsupported
}

// Clone is not supported.
func (c *Context) Clone() (*Context, error) {
	return nil, ErrUnsupported
}

// MarshalJSON reports [ErrUnsupported];
// a Context holds live dependencies and cannot be serialized.
func (c *Context) MarshalJSON() ([]byte, error) {
	return nil, ErrUnsupported
}

func (c *Context) UnmarshalJSON([]byte) error {
	return ErrUnsupported
}
