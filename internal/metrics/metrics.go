// Package metrics holds the Prometheus collectors for the polls service.
// Collectors register with the default registry at init; Handler serves it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VotesTotal counts cast outcomes: inserted, switched, unchanged, removed.
	VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypolls_votes_total",
		Help: "Vote ledger operations by outcome",
	}, []string{"outcome"})

	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypolls_polls_total",
		Help: "Poll lifecycle operations by kind",
	}, []string{"op"})

	CommentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypolls_comments_total",
		Help: "Comment operations by kind",
	}, []string{"op"})

	PollsPurgedVotes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citypolls_edit_purged_votes_total",
		Help: "Votes deleted because an edit removed their option",
	})

	LockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "citypolls_poll_lock_wait_seconds",
		Help:    "Time spent waiting for a per-poll lock",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citypolls_poll_lock_timeouts_total",
		Help: "Per-poll lock acquisitions abandoned on timeout or cancellation",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "citypolls_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
