package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jumpcut",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jumpcut",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
	}, []string{"method", "path"})

	ActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jumpcut",
		Name:      "active_jobs",
		Help:      "Number of batches currently being processed.",
	})

	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jumpcut",
		Name:      "jobs_total",
		Help:      "Finished batches by terminal status.",
	}, []string{"status"})

	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jumpcut",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of a batch from job creation to terminal status.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	VideosProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jumpcut",
		Name:      "videos_processed_total",
		Help:      "Videos run through the pipeline by result.",
	}, []string{"result"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jumpcut",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each per-video pipeline stage.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
	}, []string{"stage"})

	TranscriptPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jumpcut",
		Name:      "transcript_polls_total",
		Help:      "Transcript status queries sent to the transcription service.",
	})

	TranscriptCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jumpcut",
		Name:      "transcript_cache_total",
		Help:      "Transcript cache lookups by result.",
	}, []string{"result"})

	LogEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jumpcut",
		Name:      "log_entries_total",
		Help:      "Job log entries appended by level.",
	}, []string{"level"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveJobs,
		JobsTotal,
		BatchDuration,
		VideosProcessedTotal,
		StageDuration,
		TranscriptPollsTotal,
		TranscriptCacheTotal,
		LogEntriesTotal,
	)
}
