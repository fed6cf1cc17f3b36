package health

import (
	"errors"
	"time"
	"workshop_server/lib"
	"workshop_server/services"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "workshop"

var (
	HttpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern",
		},
		[]string{"method", "path", "status"},
	)

	ImageCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "images",
			Name:      "commits_total",
			Help:      "Image commits by outcome",
		},
		[]string{"outcome"},
	)

	// uploads dominate commit time, so the buckets reach further than the http ones
	ImageCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "images",
			Name:      "commit_duration_seconds",
			Help:      "Wall time of image commits",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// CommitOutcome classifies the result of a commit for the outcome label
func CommitOutcome(err error) string {
	var uploadErr *services.UploadFailedError
	var persistErr *services.PersistFailedError

	switch {
	case err == nil:
		return "saved"
	case errors.Is(err, lib.ErrConflict):
		return "conflict"
	case errors.As(err, &uploadErr):
		return "upload_failed"
	case errors.As(err, &persistErr):
		return "persist_failed"
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, services.ErrSessionExpired):
		return "no_session"
	default:
		return "error"
	}
}

// ObserveCommit records one commit attempt
func ObserveCommit(err error, took time.Duration) {
	ImageCommits.WithLabelValues(CommitOutcome(err)).Inc()
	ImageCommitDuration.Observe(took.Seconds())
}
