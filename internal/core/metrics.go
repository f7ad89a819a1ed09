package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records aggregation and classifier activity. A nil *Metrics records nothing.
type Metrics struct {
	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	resultItems        prometheus.Histogram
	classifierCalls    *prometheus.CounterVec
	classifierDuration prometheus.Histogram
	snapshotsSaved     prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregation_runs_total",
				Help: "Total number of aggregation runs",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aggregation_run_duration_seconds",
				Help:    "Duration of aggregation runs",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		resultItems: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aggregation_result_items",
				Help:    "Number of items produced by successful aggregation runs",
				Buckets: []float64{1, 2, 5, 10, 20, 50},
			},
		),
		classifierCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_calls_total",
				Help: "Total number of calls to the visual-analysis service",
			},
			[]string{"status"},
		),
		classifierDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classifier_call_duration_seconds",
				Help:    "Duration of calls to the visual-analysis service",
				Buckets: prometheus.DefBuckets,
			},
		),
		snapshotsSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshots_saved_total",
				Help: "Total number of saved snapshots",
			},
		),
	}
}

// RecordRun records one aggregation run.
func (m *Metrics) RecordRun(status string, duration time.Duration, items int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
	if status == "success" {
		m.resultItems.Observe(float64(items))
	}
}

// RecordClassifierCall records one call to the visual-analysis service.
func (m *Metrics) RecordClassifierCall(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.classifierCalls.WithLabelValues(status).Inc()
	m.classifierDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordSnapshotSaved() {
	if m == nil {
		return
	}
	m.snapshotsSaved.Inc()
}
