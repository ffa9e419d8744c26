package gmempool_test

import (
	"testing"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gmempool"
	"github.com/stretchr/testify/require"
)

func TestParameters_PeerBatchLimit(t *testing.T) {
	t.Parallel()

	p := gmempool.DefaultParameters()
	require.NoError(t, p.Validate())

	// Zero derives the limit from BatchSize and MaxTxSize.
	require.Zero(t, p.MaxPeerBatchSize)
	require.Equal(t,
		p.BatchSize-1+gbatch.FramedTxSize(p.MaxTxSize)+gbatch.MaxBatchOverhead,
		p.PeerBatchLimit(),
	)

	p.MaxPeerBatchSize = p.MinPeerBatchSize() + 100
	require.NoError(t, p.Validate())
	require.Equal(t, p.MinPeerBatchSize()+100, p.PeerBatchLimit())

	// A limit that would reject a batch this node can seal is invalid.
	p.MaxPeerBatchSize = 2 * p.BatchSize
	require.ErrorContains(t, p.Validate(), "MaxPeerBatchSize")

	p.MaxPeerBatchSize = -1
	require.Error(t, p.Validate())
}

func TestParameters_Validate(t *testing.T) {
	t.Parallel()

	for name, mutate := range map[string]func(*gmempool.Parameters){
		"zero batch size":      func(p *gmempool.Parameters) { p.BatchSize = 0 },
		"zero delay":           func(p *gmempool.Parameters) { p.MaxBatchDelay = 0 },
		"zero max tx size":     func(p *gmempool.Parameters) { p.MaxTxSize = 0 },
		"zero recent batches":  func(p *gmempool.Parameters) { p.RecentPeerBatches = 0 },
		"zero block threshold": func(p *gmempool.Parameters) { p.BlockedSendLogThreshold = 0 },
	} {
		p := gmempool.DefaultParameters()
		mutate(&p)
		require.Error(t, p.Validate(), name)
	}
}
