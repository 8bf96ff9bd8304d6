// Package metrics provides Prometheus metrics for assignment runs and the
// level config lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for the engine.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// =============================================================================
// RUN METRICS
// =============================================================================

// RunsTotal counts assignment runs by mode (stratified|simple) and outcome
// (assigned|nothing_to_do|invalid|failed).
var RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "assignment",
	Name:      "runs_total",
	Help:      "Assignment runs by mode and outcome",
}, []string{"mode", "outcome"})

// CasesAssignedTotal counts committed case claims by mode and agent level.
var CasesAssignedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "assignment",
	Name:      "cases_assigned_total",
	Help:      "Cases assigned by mode and agent level",
}, []string{"mode", "level"})

// LeftoverPlacedTotal counts cases placed by the leftover reconciler.
var LeftoverPlacedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "assignment",
	Name:      "leftover_placed_total",
	Help:      "Cases placed outside their quota level because it had no agents",
})

// UnplacedTotal counts cases a run could not place on any agent.
var UnplacedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "assignment",
	Name:      "unplaced_total",
	Help:      "Cases left unassigned because no agent was available",
}, []string{"mode"})

// ContendedTotal counts placements whose claim lost to a concurrent run.
var ContendedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "assignment",
	Name:      "contended_total",
	Help:      "Placements skipped because the case was already assigned",
}, []string{"mode"})

// AgentsExcludedTotal counts roster agents dropped for lacking a level.
var AgentsExcludedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "assignment",
	Name:      "agents_excluded_total",
	Help:      "On-duty agents excluded from stratified runs for lacking a level",
})

// RunDurationSeconds tracks run latency, transaction included.
var RunDurationSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "assignment",
	Name:      "run_duration_seconds",
	Help:      "Time taken by an assignment run",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
}, []string{"mode"})

// =============================================================================
// CONFIG METRICS
// =============================================================================

// ConfigTransitionsTotal counts lifecycle events (suggested|approved|saved).
var ConfigTransitionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "level_config",
	Name:      "transitions_total",
	Help:      "Level config lifecycle events",
}, []string{"event"})

// =============================================================================
// Helper Functions
// =============================================================================

// ObserveRun records the outcome of one run.
func ObserveRun(mode, outcome string, seconds float64) {
	RunsTotal.WithLabelValues(mode, outcome).Inc()
	RunDurationSeconds.WithLabelValues(mode).Observe(seconds)
}
