// Package metrics exposes Prometheus instruments for the graph engine.
//
// Instruments register on the default registry at init. Embedders that
// serve /metrics pick them up through promhttp without extra wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hypergraph"

// Session outcomes used as the "outcome" label.
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
)

var (
	// sessionsTotal counts top-level session closes.
	// Labels: outcome (committed, aborted)
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "closed_total",
		Help:      "Top-level sessions closed, by outcome",
	}, []string{"outcome"})

	// sessionEvents measures how many events one session produced.
	sessionEvents = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "events",
		Help:      "Events recorded per top-level session",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 500, 1000},
	})

	// eventsTotal counts recorded events.
	// Labels: kind
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "events_total",
		Help:      "Events recorded, by kind",
	}, []string{"kind"})

	// reversedTotal counts reverse events dispatched during rollback.
	reversedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "rollback_events_total",
		Help:      "Reverse events dispatched while rolling back aborted sessions",
	})

	// compactionsTotal counts node table shrinks.
	// Labels: graph (the owning graph name)
	compactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "compactions_total",
		Help:      "Node table compactions",
	}, []string{"graph"})

	// journalAppends counts sessions written to the journal.
	// Labels: status (ok, error)
	journalAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "appends_total",
		Help:      "Sessions appended to the journal",
	}, []string{"status"})
)

// SessionClosed records a top-level close.
func SessionClosed(aborted bool, events int) {
	outcome := OutcomeCommitted
	if aborted {
		outcome = OutcomeAborted
	}
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionEvents.Observe(float64(events))
}

// EventRecorded counts one event of the given kind.
func EventRecorded(kind string) {
	eventsTotal.WithLabelValues(kind).Inc()
}

// EventReversed counts one dispatched reverse event.
func EventReversed() {
	reversedTotal.Inc()
}

// Compacted counts one node table shrink.
func Compacted(graph string) {
	compactionsTotal.WithLabelValues(graph).Inc()
}

// JournalAppended counts one journal write.
func JournalAppended(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	journalAppends.WithLabelValues(status).Inc()
}

// Sessions returns the counter for an outcome. Intended for tests.
func Sessions(outcome string) prometheus.Counter {
	return sessionsTotal.WithLabelValues(outcome)
}

// Compactions returns the compaction counter for a graph. Intended for tests.
func Compactions(graph string) prometheus.Counter {
	return compactionsTotal.WithLabelValues(graph)
}
