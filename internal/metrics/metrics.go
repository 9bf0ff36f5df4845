// Package metrics holds the Prometheus instruments of the indexer.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	ScanFilesTotal        *prometheus.CounterVec
	ScanDurationSeconds   *prometheus.HistogramVec
	SearchDurationSeconds prometheus.Histogram
	SearchRows            prometheus.Histogram
}

// New registers every metric on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScanFilesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ppfinder_scan_files_total",
				Help: "Files processed by scans, by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		ScanDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ppfinder_scan_duration_seconds",
				Help:    "Duration of complete scans in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
			[]string{"status"},
		),
		SearchDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ppfinder_search_duration_seconds",
				Help:    "Duration of search queries in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SearchRows: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ppfinder_search_rows",
				Help:    "Total matching rows per search",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
	}
}

// FileProcessed counts one file leaving stage with outcome "ok" or "failed".
func (m *Metrics) FileProcessed(stage string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.ScanFilesTotal.WithLabelValues(stage, outcome).Inc()
}

// ScanFinished records the duration of a scan ending with status.
func (m *Metrics) ScanFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScanDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// Searched records one search call.
func (m *Metrics) Searched(d time.Duration, total int) {
	if m == nil {
		return
	}
	m.SearchDurationSeconds.Observe(d.Seconds())
	m.SearchRows.Observe(float64(total))
}
