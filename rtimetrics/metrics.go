// Package rtimetrics carries the ambient Prometheus instrumentation
// for the analysis engine, in the teacher's package-level
// CounterVec/HistogramVec style (index_manager.go).
package rtimetrics

import "github.com/prometheus/client_golang/prometheus"

var CloseOperationsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "regiontree",
	Subsystem: "logical",
	Name:      "close_operations_emitted",
}, []string{"open_state"})

var ConflictsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "regiontree",
	Subsystem: "logical",
	Name:      "conflicts_detected",
}, []string{"kind"})

var EquivalenceSetSplits = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "regiontree",
	Subsystem: "version",
	Name:      "equivalence_set_splits",
}, []string{"reason"})

var RestrictionConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "regiontree",
	Subsystem: "restrict",
	Name:      "restriction_conflicts",
}, []string{"kind"})

var VersioningWaitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "regiontree",
	Subsystem: "version",
	Name:      "versioning_wait_duration_seconds",
	Buckets:   []float64{0, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
}, []string{"state"})

var VersionManagerStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "regiontree",
	Subsystem: "version",
	Name:      "manager_state_transitions",
}, []string{"from", "to"})

// Register registers every collector with r. Call once at process
// start; tests generally use a fresh prometheus.NewRegistry() or skip
// registration entirely since the vectors are package-level and work
// unregistered too.
func Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		CloseOperationsEmitted,
		ConflictsDetected,
		EquivalenceSetSplits,
		RestrictionConflicts,
		VersioningWaitDuration,
		VersionManagerStateTransitions,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
