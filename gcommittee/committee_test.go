package gcommittee_test

import (
	"math"
	"testing"

	"github.com/gordian-engine/gmempool/gcommittee"
	"github.com/gordian-engine/gmempool/gcrypto"
	"github.com/gordian-engine/gmempool/gcrypto/gcryptotest"
	"github.com/stretchr/testify/require"
)

func authorities(stakes ...uint64) []gcommittee.Authority {
	signers := gcryptotest.DeterministicEd25519Signers(len(stakes))
	out := make([]gcommittee.Authority, len(stakes))
	for i, s := range stakes {
		out[i] = gcommittee.Authority{
			PubKey: signers[i].PubKey(),
			Stake:  s,
			Addr:   "addr-" + string(rune('a'+i)),
		}
	}
	return out
}

func TestNew_validation(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := gcommittee.New(0, nil)
		require.Error(t, err)
	})

	t.Run("zero total stake", func(t *testing.T) {
		t.Parallel()
		_, err := gcommittee.New(0, authorities(0, 0))
		require.Error(t, err)
	})

	t.Run("duplicate key", func(t *testing.T) {
		t.Parallel()
		auths := authorities(1, 1)
		auths[1].PubKey = auths[0].PubKey

		_, err := gcommittee.New(0, auths)
		require.ErrorAs(t, err, new(gcommittee.DuplicateAuthorityError))
	})

	t.Run("stake overflow", func(t *testing.T) {
		t.Parallel()
		_, err := gcommittee.New(0, authorities(math.MaxUint64, 1))
		require.Error(t, err)
	})
}

func TestCommittee_QuorumThreshold(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		stakes []uint64
		want   uint64
	}{
		{stakes: []uint64{1}, want: 1},
		{stakes: []uint64{1, 1}, want: 2},
		{stakes: []uint64{1, 1, 1}, want: 3},
		{stakes: []uint64{1, 1, 1, 1}, want: 3},
		{stakes: []uint64{1, 1, 1, 1, 1}, want: 4},
		{stakes: []uint64{1, 1, 1, 1, 1, 1, 1}, want: 5},
		{stakes: []uint64{10, 20, 30, 40}, want: 67},
		{stakes: []uint64{math.MaxUint64}, want: math.MaxUint64/3*2 + 1},
	} {
		c, err := gcommittee.New(0, authorities(tc.stakes...))
		require.NoError(t, err)
		require.Equal(t, tc.want, c.QuorumThreshold(), "stakes %v", tc.stakes)
	}
}

// Any two stake-sets reaching the threshold must share
// strictly more than one third of the total stake.
func TestCommittee_QuorumIntersection(t *testing.T) {
	t.Parallel()

	for _, stakes := range [][]uint64{
		{1, 1, 1, 1},
		{1, 2, 3, 4, 5},
		{5, 1, 1, 1, 1, 1},
		{7, 7, 7},
		{3, 3, 3, 1},
	} {
		c, err := gcommittee.New(0, authorities(stakes...))
		require.NoError(t, err)

		n := len(stakes)
		total := c.TotalStake()
		q := c.QuorumThreshold()

		sumOf := func(mask int) uint64 {
			var s uint64
			for i := range n {
				if mask&(1<<i) != 0 {
					s += stakes[i]
				}
			}
			return s
		}

		for a := range 1 << n {
			if sumOf(a) < q {
				continue
			}
			for b := range 1 << n {
				if sumOf(b) < q {
					continue
				}
				require.Greater(t, 3*sumOf(a&b), total, "stakes %v masks %b %b", stakes, a, b)
			}
		}
	}
}

func TestCommittee_lookups(t *testing.T) {
	t.Parallel()

	auths := authorities(1, 2, 3, 4)
	c, err := gcommittee.New(7, auths)
	require.NoError(t, err)

	require.Equal(t, uint64(7), c.Epoch())
	require.Equal(t, 4, c.Size())
	require.Equal(t, uint64(10), c.TotalStake())

	for _, a := range auths {
		require.Equal(t, a.Stake, c.Stake(a.PubKey))

		addr, ok := c.Address(a.PubKey)
		require.True(t, ok)
		require.Equal(t, a.Addr, addr)

		idx, ok := c.Index(a.PubKey)
		require.True(t, ok)
		require.Equal(t, a.PubKey, c.Authorities()[idx].PubKey)
	}

	unknown := gcryptotest.DeterministicEd25519Signers(5)[4].PubKey()
	require.Zero(t, c.Stake(unknown))
	_, ok := c.Address(unknown)
	require.False(t, ok)
}

func TestCommittee_BroadcastTargets(t *testing.T) {
	t.Parallel()

	auths := authorities(1, 1, 1, 1)
	c, err := gcommittee.New(0, auths)
	require.NoError(t, err)

	for _, self := range auths {
		targets := c.BroadcastTargets(self.PubKey)
		require.Len(t, targets, 3)
		for _, tgt := range targets {
			require.False(t, tgt.PubKey.Equal(self.PubKey))
		}
	}

	// Deterministic ordering across calls.
	require.Equal(t, c.BroadcastTargets(auths[0].PubKey), c.BroadcastTargets(auths[0].PubKey))

	// A single-member committee broadcasts to nobody.
	solo, err := gcommittee.New(0, authorities(5))
	require.NoError(t, err)
	require.Empty(t, solo.BroadcastTargets(solo.Authorities()[0].PubKey))
}

func TestConfig_Build(t *testing.T) {
	t.Parallel()

	var reg gcrypto.Registry
	gcrypto.RegisterEd25519(&reg)

	signers := gcryptotest.DeterministicEd25519Signers(2)
	cfg := gcommittee.Config{
		Epoch: 3,
		Authorities: []gcommittee.AuthorityConfig{
			{PubKey: gcommittee.FormatPubKey(signers[0].PubKey()), Stake: 1, Addr: "a"},
			{PubKey: gcommittee.FormatPubKey(signers[1].PubKey()), Stake: 2, Addr: "b"},
		},
	}

	c, err := cfg.Build(&reg)
	require.NoError(t, err)
	require.Equal(t, uint64(3), c.TotalStake())
	require.Equal(t, uint64(2), c.Stake(signers[1].PubKey()))

	cfg.Authorities[0].PubKey = "nope:00"
	_, err = cfg.Build(&reg)
	require.Error(t, err)

	cfg.Authorities[0].PubKey = "no-colon"
	_, err = cfg.Build(&reg)
	require.Error(t, err)
}

func TestCommittee_Config_roundTrip(t *testing.T) {
	t.Parallel()

	var reg gcrypto.Registry
	gcrypto.RegisterEd25519(&reg)

	c, err := gcommittee.New(5, authorities(1, 2, 3))
	require.NoError(t, err)

	cfg := c.Config()
	require.Equal(t, uint64(5), cfg.Epoch)
	require.Len(t, cfg.Authorities, 3)

	rebuilt, err := cfg.Build(&reg)
	require.NoError(t, err)
	require.Equal(t, c.TotalStake(), rebuilt.TotalStake())
	for _, a := range c.Authorities() {
		require.Equal(t, a.Stake, rebuilt.Stake(a.PubKey))

		addr, ok := rebuilt.Address(a.PubKey)
		require.True(t, ok)
		require.Equal(t, a.Addr, addr)
	}
}
