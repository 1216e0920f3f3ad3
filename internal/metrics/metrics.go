// Package metrics expose les métriques Prometheus du service (endpoint /metrics).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollwin_cycle_duration_seconds",
			Help:    "Duration of evaluation cycles in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollwin_cycles_total",
			Help: "Total number of evaluation cycles by final state",
		},
		[]string{"state"}, // completed, failed
	)

	CycleLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollwin_cycle_last_success_timestamp",
			Help: "Unix timestamp of the last completed cycle",
		},
	)

	HistoryEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollwin_history_events",
			Help: "Playback events retained during the last cycle",
		},
	)

	EpisodesChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollwin_episodes_changed_total",
			Help: "Episodes whose monitored flag was written",
		},
		[]string{"action"}, // monitor, unmonitor
	)

	SkippedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollwin_skipped_records_total",
			Help: "Malformed records dropped during a cycle",
		},
		[]string{"source"}, // history, catalog
	)

	ShowErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollwin_show_errors_total",
			Help: "Per-show failures by error code",
		},
		[]string{"code"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollwin_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollwin_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollwin_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordCycle enregistre la fin d'un cycle.
func RecordCycle(state string, duration time.Duration, events int) {
	CycleDuration.Observe(duration.Seconds())
	CyclesTotal.WithLabelValues(state).Inc()
	HistoryEvents.Set(float64(events))
	if state == "completed" {
		CycleLastSuccess.Set(float64(time.Now().Unix()))
	}
}
