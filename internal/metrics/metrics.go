// Package metrics exposes Prometheus collectors for update operations.
//
// Collectors are registered once via Register; the recording helpers no-op
// until registration succeeds, so callers never need to guard them.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
//
//nolint:gochecknoglobals // Prometheus collectors are conventionally package-level.
var (
	regOK atomic.Bool

	operationsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "update_manager",
			Subsystem: "operations",
			Name:      "started_total",
			Help:      "Number of update operations started.",
		},
	)
	operationsSucceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "update_manager",
			Subsystem: "operations",
			Name:      "succeeded_total",
			Help:      "Number of update operations that completed successfully.",
		},
	)
	operationsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "update_manager",
			Subsystem: "operations",
			Name:      "failed_total",
			Help:      "Number of update operations that ended in error.",
		}, []string{"reason"},
	)
	operationsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "update_manager",
			Subsystem: "operations",
			Name:      "rejected_total",
			Help:      "Number of triggers rejected because an operation was already running.",
		},
	)
	phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "update_manager",
			Subsystem: "operations",
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual update phases.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 13),
		}, []string{"phase"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}

	collectors := []prometheus.Collector{
		operationsStarted,
		operationsSucceeded,
		operationsFailed,
		operationsRejected,
		phaseDuration,
	}

	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			// Already registered is fine: keep the existing collector.
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}

			return err
		}
	}

	regOK.Store(true)

	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// default gatherer. The caller wires the route.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncStarted records the start of an update operation.
func IncStarted() {
	if regOK.Load() {
		operationsStarted.Inc()
	}
}

// IncSucceeded records a successful update operation.
func IncSucceeded() {
	if regOK.Load() {
		operationsSucceeded.Inc()
	}
}

// IncFailed records a failed update operation with its failure reason.
func IncFailed(reason string) {
	if regOK.Load() {
		operationsFailed.WithLabelValues(reason).Inc()
	}
}

// IncRejected records a trigger rejected while another operation was running.
func IncRejected() {
	if regOK.Load() {
		operationsRejected.Inc()
	}
}

// ObservePhaseDuration records the wall-clock duration of one phase.
func ObservePhaseDuration(phase string, seconds float64) {
	if regOK.Load() {
		phaseDuration.WithLabelValues(phase).Observe(seconds)
	}
}
