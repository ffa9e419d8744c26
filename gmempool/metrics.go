package gmempool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by the pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	txsReceived prometheus.Counter

	batchesSealed *prometheus.CounterVec
	batchBytes    prometheus.Histogram
	batchTxs      prometheus.Histogram

	quorumPending prometheus.Gauge
	quorumWait    prometheus.Histogram
	peerFailures  prometheus.Counter

	batchesCommitted prometheus.Counter

	peerBatchesStored   prometheus.Counter
	peerBatchesRejected prometheus.Counter
}

// NewMetrics creates the pipeline collectors and registers them with reg.
// It panics if registration fails, as with [prometheus.MustRegister].
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const ns = "gmempool"

	m := &Metrics{
		txsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "transactions_received_total",
			Help: "Client transactions accepted into the batch maker queue.",
		}),

		batchesSealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "batches_sealed_total",
			Help: "Batches sealed by the batch maker, by seal reason.",
		}, []string{"reason"}),
		batchBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "batch_size_bytes",
			Help:    "Serialized size of sealed batches.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
		batchTxs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "batch_transactions",
			Help:    "Number of transactions in sealed batches.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),

		quorumPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "quorum_pending_batches",
			Help: "Batches waiting for a quorum of acknowledgements.",
		}),
		quorumWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "quorum_wait_seconds",
			Help:    "Time from a batch entering the quorum waiter until its release.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		peerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "peer_delivery_failures_total",
			Help: "Delivery handles that resolved with an error.",
		}),

		batchesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "batches_committed_total",
			Help: "Batches persisted and forwarded to consensus.",
		}),

		peerBatchesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "peer_batches_stored_total",
			Help: "Batches from other validators persisted locally.",
		}),
		peerBatchesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "peer_batches_rejected_total",
			Help: "Batches from other validators that were malformed or conflicting.",
		}),
	}

	reg.MustRegister(
		m.txsReceived,
		m.batchesSealed, m.batchBytes, m.batchTxs,
		m.quorumPending, m.quorumWait, m.peerFailures,
		m.batchesCommitted,
		m.peerBatchesStored, m.peerBatchesRejected,
	)

	return m
}

func (m *Metrics) txReceived() {
	if m == nil {
		return
	}
	m.txsReceived.Inc()
}

func (m *Metrics) batchSealed(reason string, nBytes, nTxs int) {
	if m == nil {
		return
	}
	m.batchesSealed.WithLabelValues(reason).Inc()
	m.batchBytes.Observe(float64(nBytes))
	m.batchTxs.Observe(float64(nTxs))
}

func (m *Metrics) quorumStarted() {
	if m == nil {
		return
	}
	m.quorumPending.Inc()
}

func (m *Metrics) quorumFinished(released bool, started time.Time) {
	if m == nil {
		return
	}
	m.quorumPending.Dec()
	if released {
		m.quorumWait.Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) peerFailed() {
	if m == nil {
		return
	}
	m.peerFailures.Inc()
}

func (m *Metrics) batchCommitted() {
	if m == nil {
		return
	}
	m.batchesCommitted.Inc()
}

func (m *Metrics) peerBatchStored() {
	if m == nil {
		return
	}
	m.peerBatchesStored.Inc()
}

func (m *Metrics) peerBatchRejected() {
	if m == nil {
		return
	}
	m.peerBatchesRejected.Inc()
}
