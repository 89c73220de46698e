package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconcile outcomes, used as the label on the outcomes counter.
const (
	OutcomeCreated  = "created"
	OutcomeAttached = "attached"
	OutcomeMerged   = "merged"
	OutcomeNoop     = "noop"
	OutcomeError    = "error"
)

// Metrics holds the Prometheus metrics for the contact feature.
type Metrics struct {
	ReconcileOutcomes  *prometheus.CounterVec
	GroupMerges        prometheus.Counter
	SecondariesCreated prometheus.Counter
	ReconcileDuration  prometheus.Histogram
}

// New creates and registers the contact metrics against reg. Callers own the
// registry so tests can use isolated ones.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReconcileOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idlink_reconcile_total",
			Help: "Total reconcile calls by outcome",
		}, []string{"outcome"}),
		GroupMerges: factory.NewCounter(prometheus.CounterOpts{
			Name: "idlink_group_merges_total",
			Help: "Total identity group merges (primary demotions)",
		}),
		SecondariesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "idlink_secondaries_created_total",
			Help: "Total secondary contacts created for new identifiers",
		}),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "idlink_reconcile_duration_seconds",
			Help:    "Reconcile latency including storage round trips",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveReconcile records one reconcile call.
func (m *Metrics) ObserveReconcile(outcome string, elapsed time.Duration) {
	m.ReconcileOutcomes.WithLabelValues(outcome).Inc()
	m.ReconcileDuration.Observe(elapsed.Seconds())
}
