// Package monitoring exposes Prometheus metrics for the file service and a
// gin middleware that records them.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Filesystem operation metrics
	FileOps *prometheus.CounterVec

	// Upload metrics
	UploadsActive prometheus.Gauge
	UploadedBytes prometheus.Counter

	// Task metrics
	TasksTotal *prometheus.CounterVec

	// Archive metrics
	ArchiveJobsActive prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates and registers the metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagepod_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storagepod_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		FileOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagepod_file_operations_total",
				Help: "Total number of filesystem operations",
			},
			[]string{"operation", "status"},
		),

		UploadsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "storagepod_uploads_active",
				Help: "Number of uploads currently holding an admission slot",
			},
		),
		UploadedBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "storagepod_uploaded_bytes_total",
				Help: "Total bytes written by completed uploads",
			},
		),

		TasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagepod_tasks_total",
				Help: "Background tasks by kind and terminal status",
			},
			[]string{"kind", "status"},
		),

		ArchiveJobsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "storagepod_archive_jobs_active",
				Help: "Number of compression jobs in flight",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "storagepod_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFileOp records one filesystem operation outcome.
func (m *Metrics) RecordFileOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.FileOps.WithLabelValues(operation, status).Inc()
}

// RecordTask records a task reaching a terminal status.
func (m *Metrics) RecordTask(kind, status string) {
	m.TasksTotal.WithLabelValues(kind, status).Inc()
}
