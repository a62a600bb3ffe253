// Package metrics provides Prometheus metrics for the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts runs by final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Total number of runs by final status",
		},
		[]string{"status"}, // "succeeded", "failed", "interrupted"
	)

	// RunDuration tracks full run duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Run execution duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
		[]string{"status"},
	)

	// StagesTotal counts stage results by status.
	StagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "orchestrator",
			Name:      "stages_total",
			Help:      "Total number of stage executions by status",
		},
		[]string{"status"}, // "succeeded", "failed", "skipped"
	)

	// StageDuration tracks per-stage execution duration.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "orchestrator",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"stage", "status"},
	)

	// StageRetries tracks retry attempts per stage execution.
	StageRetries = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "orchestrator",
			Name:      "stage_retries",
			Help:      "Number of retry attempts per stage execution",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"final_status"},
	)

	// RecordsProcessed counts harvested records-processed totals per stage.
	// The count is a best-effort harvest from worker output, not
	// authoritative.
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "orchestrator",
			Name:      "records_processed_total",
			Help:      "Best-effort records processed per stage",
		},
		[]string{"stage"},
	)

	// NotificationsTotal counts notification dispatches.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "orchestrator",
			Name:      "notifications_total",
			Help:      "Total notification dispatches by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)
)
