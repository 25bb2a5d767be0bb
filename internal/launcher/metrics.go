package launcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	artifactPutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lcore_artifact_puts_total",
			Help: "Artifact puts by result (stored, deduplicated).",
		},
		[]string{"result"},
	)

	artifactIntegrityFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcore_artifact_integrity_failures_total",
		Help: "Reads whose bytes did not hash to the artifact key.",
	})

	artifactReadersOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lcore_artifact_readers_open",
		Help: "Artifact readers handed out and not yet closed.",
	})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcore_sweep_runs_total",
		Help: "Completed sweeper runs.",
	})

	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcore_sweep_artifacts_deleted_total",
		Help: "Unreferenced artifacts reclaimed by the sweeper.",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lcore_sweep_duration_seconds",
		Help:    "Sweeper run duration in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	downloadEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lcore_download_entries_total",
			Help: "Manifest entries processed by profile downloads, by result.",
		},
		[]string{"result"},
	)

	downloadRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcore_download_retries_total",
		Help: "Fetch attempts retried after a transient failure.",
	})

	downloadsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lcore_downloads_active",
		Help: "Profile downloads currently running.",
	})

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lcore_auth_attempts_total",
			Help: "Authentication attempts by result (ok, failed, banned).",
		},
		[]string{"result"},
	)

	launcherPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lcore_launcher_publishes_total",
			Help: "Launcher builds published, by OS.",
		},
		[]string{"os"},
	)
)
