package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics carries the ingestion pipeline's health signals. Collectors
// are registered on an injected registry so tests can use a private one.
type IngestMetrics struct {
	ingestLag     prometheus.Histogram
	processed     *prometheus.CounterVec
	receiveErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		ingestLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_ingest_lag_seconds",
			Help:    "Time between an event happening and the ledger recording it.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_processed_total",
			Help: "Queue messages handled, by per-message outcome.",
		}, []string{"outcome"}),
		receiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_queue_receive_errors_total",
			Help: "Polling cycles that failed to obtain a batch from the queue.",
		}),
	}
	reg.MustRegister(m.ingestLag, m.processed, m.receiveErrors)
	return m
}

// ObserveIngestLag records event time to processing time for one successfully
// ingested message. Clock skew can make the lag negative; clamp at zero.
func (m *IngestMetrics) ObserveIngestLag(lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	m.ingestLag.Observe(lag.Seconds())
}

func (m *IngestMetrics) CountOutcome(outcome string) {
	m.processed.WithLabelValues(outcome).Inc()
}

func (m *IngestMetrics) CountReceiveError() {
	m.receiveErrors.Inc()
}
