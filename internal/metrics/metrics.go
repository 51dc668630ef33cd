package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeaturesCollatedTotal counts fingerprint rows parsed from run directories
	FeaturesCollatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qemistree_features_collated_total",
			Help: "Total number of feature fingerprints collated from run directories",
		},
	)

	// FingerprintFilesSkippedTotal counts unreadable or malformed fingerprint files
	FingerprintFilesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qemistree_fingerprint_files_skipped_total",
			Help: "Fingerprint files skipped during collation",
		},
		[]string{"reason"},
	)

	// MatchedRowsTotal counts fingerprint rows by match outcome
	MatchedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qemistree_matched_rows_total",
			Help: "Fingerprint rows processed by the table matcher",
		},
		[]string{"outcome"},
	)

	// LabelsTotal counts canonical labels produced per stage
	LabelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qemistree_labels_total",
			Help: "Canonical labels produced by each stage",
		},
		[]string{"stage"},
	)

	// DistancePairsTotal counts pairwise distances computed
	DistancePairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qemistree_distance_pairs_total",
			Help: "Pairwise distances computed by metric",
		},
		[]string{"metric"},
	)

	// StageDurationSeconds measures the latency of pipeline stages
	StageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qemistree_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"stage"},
	)

	// TreeLeaves tracks the leaf count of the most recent tree built or pruned
	TreeLeaves = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qemistree_tree_leaves",
			Help: "Number of leaves in the last tree produced",
		},
		[]string{"kind"},
	)

	// ArtifactBytesWritten tracks bytes written per artifact format
	ArtifactBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qemistree_artifact_bytes_written_total",
			Help: "Bytes written to persisted artifacts",
		},
		[]string{"format"},
	)

	// FlightOperationsTotal counts the number of Flight operations
	FlightOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qemistree_flight_operations_total",
			Help: "The total number of processed Arrow Flight operations",
		},
		[]string{"method", "status"},
	)

	// FlightRowsSent counts rows streamed over DoGet
	FlightRowsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qemistree_flight_rows_sent_total",
			Help: "Rows streamed to Flight clients",
		},
		[]string{"table"},
	)

	// QueryDurationSeconds measures DuckDB snapshot queries
	QueryDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qemistree_query_duration_seconds",
			Help:    "Duration of SQL queries over parquet snapshots",
			Buckets: prometheus.DefBuckets,
		},
	)
)
