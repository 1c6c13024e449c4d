package operations

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	codesAllocated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mattracker",
		Name:      "codes_allocated_total",
		Help:      "QR code numbers issued, by source.",
	}, []string{"source"})

	allocationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mattracker",
		Name:      "allocation_conflicts_total",
		Help:      "Allocation commits rejected because another writer took the numbers first.",
	})

	cycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mattracker",
		Name:      "cycle_transitions_total",
		Help:      "Cycle state transitions, by target state.",
	}, []string{"to"})
)
