package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce                sync.Once
	submissionsCreatedTotal     *prometheus.CounterVec
	gradesAppliedTotal          prometheus.Counter
	uploadFilesTotal            *prometheus.CounterVec
	uploadRejectedTotal         *prometheus.CounterVec
	uploadRetriesTotal          prometheus.Counter
	uploadBatchLatencySeconds   prometheus.Histogram
	notificationsPublishedTotal *prometheus.CounterVec
	streamClientsActive         prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpLatencySeconds          *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the
// submission workflow.
func RegisterMetrics() {
	registerOnce.Do(func() {
		submissionsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_created_total",
			Help: "Total number of submissions accepted, labelled by lateness.",
		}, []string{"late"})

		gradesAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grades_applied_total",
			Help: "Total number of grade applications, re-grades included.",
		})

		uploadFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_files_total",
			Help: "Attachment uploads reaching a terminal state, by outcome.",
		}, []string{"state"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_rejected_total",
			Help: "Files rejected by the validation gate, by reason.",
		}, []string{"reason"})

		uploadRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upload_retries_total",
			Help: "Upload attempts beyond the first, across all files.",
		})

		uploadBatchLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "upload_batch_latency_seconds",
			Help:    "Wall time for an upload batch to reach terminal states.",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Durable notifications created, by kind.",
		}, []string{"type"})

		streamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_stream_clients_active",
			Help: "Live notification subscribers currently connected.",
		})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by method, route, and status.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_latency_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"method", "route"})

		prometheus.MustRegister(
			submissionsCreatedTotal,
			gradesAppliedTotal,
			uploadFilesTotal,
			uploadRejectedTotal,
			uploadRetriesTotal,
			uploadBatchLatencySeconds,
			notificationsPublishedTotal,
			streamClientsActive,
			httpRequestsTotal,
			httpLatencySeconds,
		)
	})
}

// SubmissionsCreated exposes the submission counter.
func SubmissionsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsCreatedTotal
}

// GradesApplied exposes the grading counter.
func GradesApplied() prometheus.Counter {
	RegisterMetrics()
	return gradesAppliedTotal
}

// UploadFiles exposes the per-file terminal state counter.
func UploadFiles() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadFilesTotal
}

// UploadRejected exposes the validation rejection counter.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadRetries exposes the retry counter.
func UploadRetries() prometheus.Counter {
	RegisterMetrics()
	return uploadRetriesTotal
}

// UploadBatchLatency exposes the batch latency histogram.
func UploadBatchLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadBatchLatencySeconds
}

// NotificationsPublished exposes the notification counter.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

// StreamClientsActive exposes the live subscriber gauge.
func StreamClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return streamClientsActive
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}
