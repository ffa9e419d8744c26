package gmempool_test

import (
	"context"
	"testing"
	"time"

	"github.com/gordian-engine/gmempool/gbatch"
	"github.com/gordian-engine/gmempool/gmempool"
	"github.com/gordian-engine/gmempool/gstore/gmemstore"
	"github.com/gordian-engine/gmempool/gtransport/gtransporttest"
	"github.com/gordian-engine/gmempool/gwatchdog"
	"github.com/gordian-engine/gmempool/internal/gtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testValidator struct {
	M         *gmempool.Mempool
	Store     *gmemstore.BatchStore
	Consensus chan gbatch.Digest
	Metrics   *gmempool.Metrics
}

// startNetwork runs one mempool per committee member on an in-process network.
// Every mempool and the network stop when ctx is canceled,
// and the returned wait function blocks until they have all returned.
func startNetwork(
	t *testing.T, ctx context.Context, c testCommittee, params gmempool.Parameters,
) (*gtransporttest.Network, []testValidator, func()) {
	t.Helper()

	log := gtest.NewLogger(t)
	n := gtransporttest.NewNetwork(ctx, log.With("sys", "network"))

	wd, wCtx := gwatchdog.NewWatchdog(ctx, log.With("sys", "watchdog"))

	vals := make([]testValidator, len(c.Signers))
	for i := range vals {
		v := testValidator{
			Store:     gmemstore.NewBatchStore(),
			Consensus: make(chan gbatch.Digest, 16),
			Metrics:   gmempool.NewMetrics(prometheus.NewRegistry()),
		}

		m, err := gmempool.New(wCtx, log.With("val", i), gmempool.Config{
			Self:      c.Key(i),
			Committee: c.Committee,

			Parameters: params,

			Store:  v.Store,
			Sender: n,

			Consensus: v.Consensus,

			Watchdog: wd,
			Metrics:  v.Metrics,
		})
		require.NoError(t, err)
		require.Equal(t, testAddr(i), m.Address())

		n.Register(m.Address(), m.Handler())

		v.M = m
		vals[i] = v
	}

	wait := func() {
		for _, v := range vals {
			v.M.Wait()
		}
		n.Wait()
		wd.Wait()
	}

	return n, vals, wait
}

func testParameters(batchSize int) gmempool.Parameters {
	p := gmempool.DefaultParameters()
	p.BatchSize = batchSize
	p.MaxBatchDelay = time.Hour
	return p
}

func TestMempool_endToEnd(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestCommittee(t, 1, 1, 1, 1)
	_, vals, wait := startNetwork(t, ctx, c, testParameters(6))
	defer wait()
	defer cancel()

	require.NoError(t, vals[0].M.SubmitTransaction(ctx, gbatch.Transaction("abc")))
	require.NoError(t, vals[0].M.SubmitTransaction(ctx, gbatch.Transaction("def")))

	d := gtest.ReceiveSoon(t, vals[0].Consensus)

	// The local store has the batch before the digest is forwarded.
	got, err := vals[0].Store.LoadBatch(ctx, d, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"abc", "def"}, decodeTxs(t, got))
	require.Equal(t, d, gbatch.Blake2bHashScheme{}.Digest(got))

	// At least a quorum of peers stored it too.
	nStored := 0
	for _, v := range vals[1:] {
		if has, err := v.Store.HasBatch(ctx, d); err == nil && has {
			nStored++
		}
	}
	require.GreaterOrEqual(t, nStored, 2)

	// Peers do not forward batches they only stored.
	for _, v := range vals[1:] {
		gtest.NotSending(t, v.Consensus)
	}
}

func TestMempool_transactionMessage(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestCommittee(t, 1, 1, 1, 1)
	n, vals, wait := startNetwork(t, ctx, c, testParameters(1))
	defer wait()
	defer cancel()

	h := n.Send(ctx, testAddr(2), gbatch.EncodeTransactionMessage(gbatch.Transaction("via network")))
	_ = gtest.ReceiveSoon(t, h.Done())
	require.NoError(t, h.Err())

	d := gtest.ReceiveSoon(t, vals[2].Consensus)
	got, err := vals[2].Store.LoadBatch(ctx, d, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"via network"}, decodeTxs(t, got))
}

func TestMempool_insufficientReachableStake(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestCommittee(t, 1, 1, 1, 1)
	n, vals, wait := startNetwork(t, ctx, c, testParameters(1))
	defer wait()
	defer cancel()

	n.SetUnreachable(testAddr(2), true)
	n.Hold(testAddr(3))

	require.NoError(t, vals[0].M.SubmitTransaction(ctx, gbatch.Transaction("tx")))

	// Own stake and val-1 make 2 of the 3 needed.
	gtest.NotSendingSoon(t, vals[0].Consensus)

	// The held peer eventually acknowledges and the batch is released.
	n.Release(testAddr(3))
	d := gtest.ReceiveSoon(t, vals[0].Consensus)

	has, err := vals[3].Store.HasBatch(ctx, d)
	require.NoError(t, err)
	require.True(t, has)

	has, err = vals[2].Store.HasBatch(ctx, d)
	require.NoError(t, err)
	require.False(t, has)
}

func TestNew_validation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := gtest.NewLogger(t)
	wd, wCtx := gwatchdog.NewNopWatchdog(ctx, log)
	defer wd.Wait()
	defer cancel()

	c := newTestCommittee(t, 1, 1, 1, 1)
	outsider := newTestCommittee(t, 1, 1, 1, 1, 1).Key(4)

	valid := gmempool.Config{
		Self:       c.Key(0),
		Committee:  c.Committee,
		Parameters: gmempool.DefaultParameters(),
		Store:      gmemstore.NewBatchStore(),
		Sender:     gtransporttest.NewManualSender(1),
		Consensus:  make(chan gbatch.Digest),
		Watchdog:   wd,
	}

	for name, mutate := range map[string]func(*gmempool.Config){
		"not a member":    func(cfg *gmempool.Config) { cfg.Self = outsider },
		"zero batch size": func(cfg *gmempool.Config) { cfg.Parameters.BatchSize = 0 },
		"no delay":        func(cfg *gmempool.Config) { cfg.Parameters.MaxBatchDelay = 0 },
		"no store":        func(cfg *gmempool.Config) { cfg.Store = nil },
		"no sender":       func(cfg *gmempool.Config) { cfg.Sender = nil },
		"no consensus":    func(cfg *gmempool.Config) { cfg.Consensus = nil },
		"no watchdog":     func(cfg *gmempool.Config) { cfg.Watchdog = nil },
		"no committee":    func(cfg *gmempool.Config) { cfg.Committee = nil },
	} {
		cfg := valid
		mutate(&cfg)
		_, err := gmempool.New(wCtx, log, cfg)
		require.Error(t, err, name)
	}
}
