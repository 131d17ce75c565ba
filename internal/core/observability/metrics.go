package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tileDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hgt_tile_downloads_total",
			Help: "Tile download attempts against remote sources.",
		},
		[]string{"source", "outcome"},
	)

	downloadDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hgt_download_duration_seconds",
			Help:    "Duration of remote tile downloads in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"source"},
	)

	indexBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hgt_index_builds_total",
			Help: "Existence index rebuilds from remote coverage manifests.",
		},
		[]string{"source", "outcome"},
	)

	diskCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hgt_disk_cache_results_total",
			Help: "Local tile cache lookups by outcome.",
		},
		[]string{"source", "outcome"},
	)

	sourceAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hgt_source_attempts_total",
			Help: "Per-tile source resolution attempts by outcome.",
		},
		[]string{"source", "outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hgt_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveDownload(source string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tileDownloadsTotal.WithLabelValues(source, outcome).Inc()
	downloadDurationSeconds.WithLabelValues(source).Observe(durationSeconds)
}

func IncIndexBuild(source string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	indexBuildsTotal.WithLabelValues(source, outcome).Inc()
}

func IncDiskCacheHit(source string) {
	diskCacheResults.WithLabelValues(source, "hit").Inc()
}

func IncDiskCacheMiss(source string) {
	diskCacheResults.WithLabelValues(source, "miss").Inc()
}

func IncAttempt(source, outcome string) {
	sourceAttempts.WithLabelValues(source, outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
