// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid everywhere it is accepted: callers check
// before recording, so tests run without a registry.
type Metrics struct {
	// Exchange metrics
	SwapsExecuted prometheus.Counter
	SwapsRejected *prometheus.CounterVec
	SwapLatency   prometheus.Histogram

	// Lifecycle metrics
	PoolsActivated prometheus.Counter
	PoolsClosed    prometheus.Counter
	PoolsScored    prometheus.Counter
	ActivePools    prometheus.Gauge
	StuckPools     prometheus.Counter
	SweepsRun      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "amm_experiment_lab"
	}

	return &Metrics{
		SwapsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "swaps_executed_total",
			Help:      "Total number of swaps committed",
		}),
		SwapsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "swaps_rejected_total",
			Help:      "Total number of swaps rejected by reason",
		}, []string{"reason"}),
		SwapLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "swap_latency_seconds",
			Help:      "End-to-end swap execution latency",
			Buckets:   prometheus.DefBuckets,
		}),

		PoolsActivated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "pools_activated_total",
			Help:      "Total number of pool activations",
		}),
		PoolsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "pools_closed_total",
			Help:      "Total number of pool deactivations",
		}),
		PoolsScored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "pools_scored_total",
			Help:      "Total number of pools scored",
		}),
		ActivePools: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "active_pools",
			Help:      "Current number of active pools",
		}),
		StuckPools: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "stuck_pools_total",
			Help:      "Total number of pools seen active past deadline plus grace",
		}),
		SweepsRun: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "sweeps_run_total",
			Help:      "Total number of expiry sweeps executed",
		}),
	}
}

// Handler returns the HTTP handler serving the default registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
