// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Action metrics
	ActionsTotal      *prometheus.CounterVec
	ActionDuration    *prometheus.HistogramVec
	ActionStepLatency *prometheus.HistogramVec
	ReconcileReplays  *prometheus.CounterVec

	// Ledger metrics
	RPCCallLatency     *prometheus.HistogramVec
	ConfirmationsTotal *prometheus.CounterVec
	WSMessageLatency   prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulAction prometheus.Gauge
	AuditWriteErrors     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "rwa_vault_lab"
	}

	return &Metrics{
		// Action metrics
		ActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "total",
			Help:      "Total number of financial actions by kind and outcome",
		}, []string{"kind", "outcome"}),
		ActionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "duration_seconds",
			Help:      "End-to-end action duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"kind"}),
		ActionStepLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "step_latency_seconds",
			Help:      "Per-step latency of the action lifecycle in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "step"}),
		ReconcileReplays: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "replays_total",
			Help:      "Total number of reconciliation runs detected as already applied",
		}, []string{"kind"}),

		// Ledger metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ledger RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ConfirmationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "confirmations_total",
			Help:      "Total number of confirmation waits by result",
		}, []string{"result"}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket receipt notification processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulAction: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_action_timestamp",
			Help:      "Unix timestamp of the last action reaching DONE",
		}),
		AuditWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "audit_write_errors_total",
			Help:      "Total number of failed audit trail writes",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordActionOutcome increments the action counter for one terminal outcome.
func RecordActionOutcome(kind, outcome string) {
	DefaultMetrics.ActionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordStepLatency observes one lifecycle step's duration.
func RecordStepLatency(kind, step string, seconds float64) {
	DefaultMetrics.ActionStepLatency.WithLabelValues(kind, step).Observe(seconds)
}

// RecordConfirmation increments the confirmation counter by result.
func RecordConfirmation(result string) {
	DefaultMetrics.ConfirmationsTotal.WithLabelValues(result).Inc()
}

// RecordReconcileReplay increments the replay counter for a kind.
func RecordReconcileReplay(kind string) {
	DefaultMetrics.ReconcileReplays.WithLabelValues(kind).Inc()
}
