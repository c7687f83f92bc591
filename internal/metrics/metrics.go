package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EntryPointsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pathflow_entry_points_enqueued_total",
		Help: "Total number of entry points placed on the analysis queue.",
	})

	EntryPointsAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathflow_entry_points_analyzed_total",
		Help: "Total number of entry points analyzed, labelled by final status.",
	}, []string{"status"})

	PathsExpanded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pathflow_paths_expanded_total",
		Help: "Total number of complete paths produced by expansion.",
	})

	PathsWalked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathflow_paths_walked_total",
		Help: "Total number of path walks, labelled by outcome.",
	}, []string{"outcome"})

	Forks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pathflow_path_forks_total",
		Help: "Total number of paths forked at method invocations.",
	})

	Violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathflow_violations_total",
		Help: "Total number of violations reported, labelled by rule.",
	}, []string{"rule"})

	RegistryRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pathflow_registry_rejections_total",
		Help: "Total number of registrations refused because a registry table was full.",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathflow_vertex_cache_lookups_total",
		Help: "Total number of vertex cache lookups, labelled by result (hit, miss).",
	}, []string{"result"})

	EntryPointDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pathflow_entry_point_duration_ms",
		Help:    "Expansion plus walk latency per entry point in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pathflow_queue_utilization_ratio",
		Help: "Current analysis queue utilization (0–1).",
	})
)
