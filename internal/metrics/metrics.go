// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	runsTotal       *prometheus.CounterVec
	recordsTotal    *prometheus.CounterVec
	pagesTotal      *prometheus.CounterVec
	cardsWritten    prometheus.Counter
	runConflicts    prometheus.Counter
	runDurationSecs *prometheus.HistogramVec
)

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "admitpipe_runs_total",
			Help: "Pipeline runs by action and outcome.",
		}, []string{"action", "outcome"})

		recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "admitpipe_records_total",
			Help: "Records processed by disposition.",
		}, []string{"disposition"})

		pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "admitpipe_pages_total",
			Help: "Survey pages fetched by result.",
		}, []string{"result"})

		cardsWritten = promauto.NewCounter(prometheus.CounterOpts{
			Name: "admitpipe_cards_written_total",
			Help: "Analysis cards written to disk.",
		})

		runConflicts = promauto.NewCounter(prometheus.CounterOpts{
			Name: "admitpipe_run_conflicts_total",
			Help: "Run requests refused because another run was in flight.",
		})

		runDurationSecs = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admitpipe_run_duration_seconds",
			Help:    "Pipeline run duration by action.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"action"})
	})
}

// ObserveRun records one finished run. No-op before Init.
func ObserveRun(action, outcome string, seconds float64) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(action, outcome).Inc()
	runDurationSecs.WithLabelValues(action).Observe(seconds)
}

// ObserveRecords adds to the per-disposition record counters. No-op
// before Init.
func ObserveRecords(disposition string, n int) {
	if recordsTotal == nil || n <= 0 {
		return
	}
	recordsTotal.WithLabelValues(disposition).Add(float64(n))
}

// ObservePage counts one fetched page. No-op before Init.
func ObservePage(result string) {
	if pagesTotal == nil {
		return
	}
	pagesTotal.WithLabelValues(result).Inc()
}

// ObserveCards counts cards written in one analysis run. No-op before Init.
func ObserveCards(n int) {
	if cardsWritten == nil || n <= 0 {
		return
	}
	cardsWritten.Add(float64(n))
}

// ObserveConflict counts one refused run request. No-op before Init.
func ObserveConflict() {
	if runConflicts == nil {
		return
	}
	runConflicts.Inc()
}
