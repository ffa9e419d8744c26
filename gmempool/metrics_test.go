package gmempool

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_nilIsValid(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.txReceived()
		m.batchSealed(sealReasonSize, 10, 1)
		m.quorumStarted()
		m.quorumFinished(true, time.Now())
		m.peerFailed()
		m.batchCommitted()
		m.peerBatchStored()
		m.peerBatchRejected()
	})
}

func TestMetrics_records(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.txReceived()
	m.txReceived()
	require.Equal(t, 2.0, testutil.ToFloat64(m.txsReceived))

	m.batchSealed(sealReasonSize, 100, 3)
	m.batchSealed(sealReasonDelay, 10, 1)
	m.batchSealed(sealReasonDelay, 10, 1)
	require.Equal(t, 1.0, testutil.ToFloat64(m.batchesSealed.WithLabelValues(sealReasonSize)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.batchesSealed.WithLabelValues(sealReasonDelay)))

	m.quorumStarted()
	m.quorumStarted()
	require.Equal(t, 2.0, testutil.ToFloat64(m.quorumPending))
	m.quorumFinished(true, time.Now())
	m.quorumFinished(false, time.Now())
	require.Zero(t, testutil.ToFloat64(m.quorumPending))

	n, err := testutil.GatherAndCount(reg, "gmempool_quorum_wait_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// A second registration of the same collectors is a programmer error.
	require.Panics(t, func() { NewMetrics(reg) })
}
