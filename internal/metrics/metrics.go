package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ObservationsTotal *prometheus.CounterVec
	BeliefsCreated    prometheus.Counter
	BeliefsUpdated    prometheus.Counter
	ReconcileFailures prometheus.Counter
}

// New creates and registers all metrics with the given registerer. Passing a
// fresh registry keeps tests isolated from the default global one.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beliefd_http_requests_total",
			Help: "Total HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beliefd_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		ObservationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beliefd_observations_total",
			Help: "Observations processed by reconciliation outcome.",
		}, []string{"outcome"}),
		BeliefsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "beliefd_beliefs_created_total",
			Help: "Beliefs created from first-time observations.",
		}),
		BeliefsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "beliefd_beliefs_updated_total",
			Help: "Beliefs updated by reconciliation.",
		}),
		ReconcileFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "beliefd_reconcile_failures_total",
			Help: "Observations that failed reconciliation and were skipped.",
		}),
	}
}

// Observation outcomes.
const (
	OutcomeCreated      = "created"
	OutcomeConfirmed    = "confirmed"
	OutcomeContradicted = "contradicted"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
)
