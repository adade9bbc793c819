package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var MinimizersScanned = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "minimizers_scanned_total",
		Help: "Minimizers emitted by the scanner, by pipeline stage",
	},
	[]string{"stage"},
)

var SlotsWritten = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "k2_slots_written_total",
		Help: "Slot<u64> records written to k2 chunk files, by partition",
	},
	[]string{"partition"},
)

var CompareAndSetAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cht_compare_and_set_attempts_total",
		Help: "CAS attempts against the compact hash table, by outcome",
	},
	[]string{"outcome"}, // "inserted", "merged", "probe_retry", "table_full"
)

var TableOccupancy = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "cht_partition_occupancy_ratio",
		Help: "Fraction of occupied cells in a hash table partition",
	},
	[]string{"partition"},
)

var ReadsClassified = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reads_classified_total",
		Help: "Reads processed by the classifier, by classification outcome",
	},
	[]string{"outcome"}, // "classified", "unclassified"
)

var ClassifyLatencyHistogram = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "classify_read_latency_seconds",
		Help:    "Per-read classification latency",
		Buckets: prometheus.ExponentialBuckets(0.00001, 8, 8),
	},
	[]string{"paired"},
)

var BuildPhaseDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "build_phase_duration_seconds",
		Help:    "Wall-clock duration of a build pipeline phase",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	},
	[]string{"phase"}, // "fasta_to_chunks", "chunks_to_table"
)

var Version = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "version",
		Help: "Version information of this binary",
	},
	[]string{"started_at", "tag", "commit", "compiler", "goarch", "goos"},
)
