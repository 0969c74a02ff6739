// Package metrics exposes Prometheus instrumentation for mediaboard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Ingestion
	UploadsTotal     *prometheus.CounterVec
	UploadBytes      prometheus.Counter
	DuplicatesTotal  prometheus.Counter
	ArchiveEntries   *prometheus.CounterVec
	ThumbnailsTotal  *prometheus.CounterVec
	ReplacementsTotal prometheus.Counter
	DeletionsTotal   prometheus.Counter

	// Serving
	DownloadsTotal *prometheus.CounterVec

	// Sweep
	SweepLastRunTime prometheus.Gauge
	SweepOrphans     prometheus.Gauge
	SweepDuration    prometheus.Histogram
	SweepFreedBytes  prometheus.Counter
}

// New registers all collectors on the given registerer and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediaboard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Ingested files by outcome (created, duplicate, rejected).",
		}, []string{"outcome"}),

		UploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "ingest",
			Name:      "upload_bytes_total",
			Help:      "Total bytes accepted into the content store.",
		}),

		DuplicatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "ingest",
			Name:      "duplicates_total",
			Help:      "Uploads that matched an existing content hash.",
		}),

		ArchiveEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "ingest",
			Name:      "archive_entries_total",
			Help:      "Archive entries by outcome (ingested, skipped).",
		}, []string{"outcome"}),

		ThumbnailsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "thumbnail",
			Name:      "generated_total",
			Help:      "Thumbnails generated by outcome (ok, placeholder).",
		}, []string{"outcome"}),

		ReplacementsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "media",
			Name:      "replacements_total",
			Help:      "Successful content replacements.",
		}),

		DeletionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "media",
			Name:      "deletions_total",
			Help:      "Deleted media records.",
		}),

		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "serve",
			Name:      "downloads_total",
			Help:      "File responses by variant and cache status.",
		}, []string{"variant", "cache"}),

		SweepLastRunTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediaboard",
			Subsystem: "sweep",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last orphan sweep.",
		}),

		SweepOrphans: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediaboard",
			Subsystem: "sweep",
			Name:      "orphans",
			Help:      "Orphaned files found during the last sweep.",
		}),

		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mediaboard",
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of orphan sweeps.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),

		SweepFreedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mediaboard",
			Subsystem: "sweep",
			Name:      "freed_bytes_total",
			Help:      "Bytes reclaimed by orphan sweeps.",
		}),
	}
}

// RecordSweep records the outcome of one orphan sweep run.
func (m *Metrics) RecordSweep(seconds float64, orphans int, freedBytes int64) {
	m.SweepDuration.Observe(seconds)
	m.SweepOrphans.Set(float64(orphans))
	m.SweepFreedBytes.Add(float64(freedBytes))
	m.SweepLastRunTime.SetToCurrentTime()
}
