package metrics

import "github.com/prometheus/client_golang/prometheus"

// TransactionMetrics holds Prometheus metrics for the karma transaction
// pipeline.
type TransactionMetrics struct {
	TransactionsTotal  *prometheus.CounterVec
	CooldownRejections prometheus.Counter
	ProcessingDuration prometheus.Histogram
	CleanupDeleted     prometheus.Counter
	EventsPublished    *prometheus.CounterVec
}

// NewTransactionMetrics creates and registers transaction pipeline metrics
// on the given registry.
func NewTransactionMetrics(reg prometheus.Registerer) *TransactionMetrics {
	m := &TransactionMetrics{
		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total number of karma transactions, by kind and result.",
		}, []string{"kind", "result"}),
		CooldownRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldown_rejections_total",
			Help:      "Total number of transfers rejected by the cooldown policy.",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Duration of karma transaction processing in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		CleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_rows_deleted_total",
			Help:      "Total number of history rows deleted by the retention cleaner.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of outbound events published, by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(m.TransactionsTotal, m.CooldownRejections, m.ProcessingDuration, m.CleanupDeleted, m.EventsPublished)
	return m
}
