// Package metrics holds the Prometheus collectors for orchestration calls.
// They are registered with controller-runtime's global registry so any
// process embedding the manager exposes them on the same endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "servermgr"

var (
	// OperationsTotal counts ServerManager calls by operation and reported outcome.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Number of orchestration operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time spent in orchestration operations.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	// PollAttemptsTotal counts failed predicate evaluations inside the poller.
	PollAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failed_attempts_total",
			Help:      "Number of poll attempts whose predicate was still false.",
		},
	)

	RemoteCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_commands_total",
			Help:      "Remote commands issued over SSH by result.",
		},
		[]string{"result"},
	)
)

func init() {
	ctrlmetrics.Registry.MustRegister(
		OperationsTotal,
		OperationDuration,
		PollAttemptsTotal,
		RemoteCommandsTotal,
	)
}
