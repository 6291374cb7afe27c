package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// geocoding pipeline and the download fabric.
type Metrics struct {
	RecordsProcessed prometheus.Counter
	MatchLevelTotal  *prometheus.CounterVec // label: level
	RecordLatency    prometheus.Histogram
	StageDuration    *prometheus.HistogramVec // label: stage
	PipelineRunning  prometheus.Gauge

	// Download fabric metrics.
	DownloadAttempts  prometheus.Counter
	DownloadRetries   prometheus.Counter
	DownloadFailures  prometheus.Counter
	DownloadBytes     prometheus.Counter
	CacheLookups      *prometheus.CounterVec // label: result={hit,miss}
	DownloadsInFlight prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsProcessed,
		m.MatchLevelTotal,
		m.RecordLatency,
		m.StageDuration,
		m.PipelineRunning,
		m.DownloadAttempts,
		m.DownloadRetries,
		m.DownloadFailures,
		m.DownloadBytes,
		m.CacheLookups,
		m.DownloadsInFlight,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "abrg",
			Name:      "records_processed_total",
			Help:      "Total address records emitted by the pipeline.",
		}),
		MatchLevelTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abrg",
			Name:      "match_level_total",
			Help:      "Emitted records by final match level.",
		}, []string{"level"}),
		RecordLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "abrg",
			Name:      "record_latency_seconds",
			Help:      "Wall time from ingest to emit per record.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "abrg",
			Name:      "stage_duration_seconds",
			Help:      "Processing time per pipeline stage.",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "abrg",
			Name:      "pipeline_running",
			Help:      "1 while the pipeline is active, 0 when shut down.",
		}),
		DownloadAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "abrg",
			Name:      "download_attempts_total",
			Help:      "HTTP download attempts, including retries.",
		}),
		DownloadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "abrg",
			Name:      "download_retries_total",
			Help:      "Download attempts beyond the first per task.",
		}),
		DownloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "abrg",
			Name:      "download_failures_total",
			Help:      "Download tasks that exhausted all attempts.",
		}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "abrg",
			Name:      "download_bytes_total",
			Help:      "Bytes fetched from the dataset catalog.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abrg",
			Name:      "download_cache_lookups_total",
			Help:      "Content-addressed cache lookups by result.",
		}, []string{"result"}),
		DownloadsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "abrg",
			Name:      "downloads_in_flight",
			Help:      "Download tasks currently running.",
		}),
	}
}
