// Package metrics exposes Prometheus collectors for the oyin backend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests labeled by route, method and status code",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	exchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchanges_total",
			Help: "Total number of coupon exchange attempts labeled by outcome",
		},
		[]string{"outcome"},
	)
	exchangeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exchange_duration_seconds",
			Help:    "Duration of the exchange transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	voucherTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voucher_transitions_total",
			Help: "Total number of voucher status transitions",
		},
		[]string{"from", "to"},
	)
	leaderboardCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_cache_total",
			Help: "Leaderboard cache lookups labeled by result",
		},
		[]string{"result"},
	)
	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter labeled by route",
		},
		[]string{"route"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
)

// RecordHTTPRequest increments the request counter and records duration.
func RecordHTTPRequest(route, method, status string, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	httpRequestsTotal.WithLabelValues(route, method, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordExchange tracks an exchange attempt with its outcome.
func RecordExchange(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}

	exchangesTotal.WithLabelValues(outcome).Inc()
	exchangeDurationSeconds.Observe(duration.Seconds())
}

// RecordVoucherTransition tracks voucher status transitions.
func RecordVoucherTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	voucherTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordLeaderboardCache tracks cache hits and misses.
func RecordLeaderboardCache(result string) {
	if result == "" {
		result = "unknown"
	}

	leaderboardCacheTotal.WithLabelValues(result).Inc()
}

// RecordRateLimited increments the rejected-request counter for a route.
func RecordRateLimited(route string) {
	if route == "" {
		route = "unknown"
	}

	rateLimitedTotal.WithLabelValues(route).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}
