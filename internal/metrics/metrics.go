package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otonote_jobs_processed_total",
			Help: "Total number of transcription jobs processed, labeled by terminal status.",
		},
		[]string{"status"}, // 'done', 'error'
	)

	jobDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "otonote_job_duration_seconds",
			Help:    "Wall-clock duration of one job's processing.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
	)

	segmentsTranscribedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otonote_segments_transcribed_total",
			Help: "Total number of diarization segments transcribed.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsProcessedTotal, jobDurationSeconds, segmentsTranscribedTotal)
}

// IncJob records one finished job by terminal status.
func IncJob(status string) {
	jobsProcessedTotal.WithLabelValues(status).Inc()
}

// ObserveJobDuration records how long a job's processing took in seconds.
func ObserveJobDuration(seconds float64) {
	jobDurationSeconds.Observe(seconds)
}

// IncSegment records one transcribed diarization segment.
func IncSegment() {
	segmentsTranscribedTotal.Inc()
}
