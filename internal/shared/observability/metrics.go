package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polybuild_parsing_seconds",
		Help:    "Time spent parsing a single document.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	FragmentAnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polybuild_fragment_analysis_seconds",
		Help:    "Time spent analyzing a fragment, including waits on deferred loads.",
		Buckets: prometheus.DefBuckets,
	})

	DependencyFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polybuild_dependency_fetch_seconds",
		Help:    "Time spent reading a dependency from the backing store.",
		Buckets: prometheus.DefBuckets,
	})

	DependencyFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polybuild_dependency_fetches_total",
		Help: "Total number of dependency reads requested.",
	})

	FilesRegisteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polybuild_files_registered_total",
		Help: "Total number of files registered, by stream.",
	}, []string{"stream"})

	DeferredLoadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polybuild_deferred_loads_total",
		Help: "Total number of loads parked until their file registered.",
	})

	DeferredLoadsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polybuild_deferred_loads_pending",
		Help: "Current number of loads waiting on an unregistered file.",
	})

	ScriptsSplitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polybuild_scripts_split_total",
		Help: "Total number of inline scripts extracted into sibling files.",
	})

	FetchCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polybuild_fetch_cache_hits_total",
		Help: "Total number of dependency reads served from the file cache.",
	})

	BuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polybuild_build_seconds",
		Help:    "Wall time of a full build.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polybuild_builds_total",
		Help: "Total number of builds, by status.",
	}, []string{"status"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polybuild_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
