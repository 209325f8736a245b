package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_runs_total",
		Help: "Total pipeline runs by final status",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fusion_run_duration_seconds",
		Help:    "Wall-clock duration of a pipeline run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fusion_stage_duration_seconds",
		Help:    "Duration of one collection stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"source"})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_stage_failures_total",
		Help: "Collection stages that ended unavailable, by source",
	}, []string{"source"})

	sourceRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_source_records_total",
		Help: "Raw observations collected, by source",
	}, []string{"source"})

	recordDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusion_record_decisions_total",
		Help: "Filtering outcomes for fused records",
	}, []string{"decision"})

	recordScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fusion_record_quality_score",
		Help:    "Quality score of fused records",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
)

// Filtering decisions.
const (
	decisionKept      = "kept"
	decisionPatched   = "patched"
	decisionDiscarded = "discarded"
	decisionEmpty     = "empty"
)
