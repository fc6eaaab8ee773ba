package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP request duration (histogram)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// HTTP requests currently in flight
	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Login attempts by outcome
	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"outcome"},
	)

	// Refresh-token rotations by outcome
	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Total number of refresh token rotations",
		},
		[]string{"outcome"},
	)

	// Requests rejected by a rate-limit policy
	rateLimitRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejected_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"policy"},
	)

	// Detected refresh-token replays
	tokenReuseDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_token_reuse_detected_total",
			Help: "Total number of detected refresh token replays",
		},
	)
)

// MetricsMiddleware collects Prometheus metrics for every HTTP request.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		httpRequestsInFlight.Inc()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		c.Next()

		httpRequestsInFlight.Dec()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// RecordLoginAttempt records a login attempt outcome.
func RecordLoginAttempt(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	loginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh records a refresh rotation outcome.
func RecordTokenRefresh(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimitRejection records a request rejected by a policy.
func RecordRateLimitRejection(policy string) {
	rateLimitRejectedTotal.WithLabelValues(policy).Inc()
}

// RecordTokenReuse records a detected refresh token replay.
func RecordTokenReuse() {
	tokenReuseDetectedTotal.Inc()
}
