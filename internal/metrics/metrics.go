// Package metrics exposes Prometheus collectors for the polling engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll outcome labels. Exactly one is observed per Registry.Poll call.
const (
	PollSkipped        = "skipped"
	PollDeleted        = "deleted"
	PollMuted          = "muted"
	PollTimeout        = "timeout"
	PollGone           = "gone"
	PollTransientError = "transient_error"
	PollRedirected     = "redirected"
	PollNotModified    = "not_modified"
	PollSuccess        = "success"
)

// Favicon resolution outcome labels.
const (
	FaviconResolved    = "resolved"
	FaviconUnsupported = "unsupported"
	FaviconUnknown     = "unknown"
	FaviconFailed      = "failed"
)

var (
	pollsTotal              *prometheus.CounterVec
	pollDurationSeconds     *prometheus.HistogramVec
	entriesCreatedTotal     prometheus.Counter
	pushNotificationsTotal  prometheus.Counter
	faviconResolutionsTotal *prometheus.CounterVec
	activePollers           prometheus.Gauge
	rateLimitDelaysSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedhq_polls_total",
				Help: "Total number of poll attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pollDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedhq_poll_duration_seconds",
				Help:    "Histogram of feed fetch latencies, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		)

		entriesCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedhq_entries_created_total",
				Help: "Total number of entries created by fan-out.",
			},
		)

		pushNotificationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedhq_push_notifications_total",
				Help: "Total number of accepted push notifications.",
			},
		)

		faviconResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedhq_favicon_resolutions_total",
				Help: "Total number of favicon resolution attempts, labeled by result.",
			},
			[]string{"result"},
		)

		activePollers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "feedhq_active_pollers",
				Help: "Number of workers currently running a poll attempt.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedhq_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePoll records one completed poll attempt. A zero duration means no
// HTTP exchange happened.
func ObservePoll(outcome string, duration time.Duration) {
	if pollsTotal == nil {
		return
	}
	pollsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		pollDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// ObserveEntriesCreated adds to the fan-out entry counter.
func ObserveEntriesCreated(n int) {
	if entriesCreatedTotal == nil || n <= 0 {
		return
	}
	entriesCreatedTotal.Add(float64(n))
}

// ObservePushNotification counts one accepted push notification.
func ObservePushNotification() {
	if pushNotificationsTotal == nil {
		return
	}
	pushNotificationsTotal.Inc()
}

// ObserveFavicon records a favicon resolution attempt.
func ObserveFavicon(result string) {
	if faviconResolutionsTotal == nil {
		return
	}
	faviconResolutionsTotal.WithLabelValues(result).Inc()
}

// IncActivePollers increments the active pollers gauge.
func IncActivePollers() {
	if activePollers == nil {
		return
	}
	activePollers.Inc()
}

// DecActivePollers decrements the active pollers gauge.
func DecActivePollers() {
	if activePollers == nil {
		return
	}
	activePollers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
