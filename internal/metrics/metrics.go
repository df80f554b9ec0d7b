// Package metrics exposes Prometheus collectors for the resolver service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	resolutionsTotal          *prometheus.CounterVec
	resolutionConfidence      *prometheus.HistogramVec
	resolutionDurationSeconds prometheus.Histogram
	fetchAttemptsTotal        *prometheus.CounterVec
	identityRotationsTotal    prometheus.Counter
	renderedFetchesTotal      prometheus.Counter
	cacheReadsTotal           *prometheus.CounterVec
	providerBatchItemsTotal   *prometheus.CounterVec
	reviewAlertsTotal         *prometheus.CounterVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_resolutions_total",
				Help: "Total URL resolutions, labeled by method and review flag.",
			},
			[]string{"method", "needs_review"},
		)

		resolutionConfidence = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolver_confidence",
				Help:    "Histogram of resolution confidence scores by method.",
				Buckets: []float64{0, 10, 30, 50, 60, 70, 78, 85, 90, 95, 100},
			},
			[]string{"method"},
		)

		resolutionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "resolver_resolution_duration_seconds",
				Help:    "Histogram of end-to-end resolution latency.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
			},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_attempts_total",
				Help: "Total page fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		identityRotationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fetch_identity_rotations_total",
				Help: "Total identity rotations triggered by blocks or errors.",
			},
		)

		renderedFetchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fetch_rendered_total",
				Help: "Total headless rendered fetches after identity exhaustion.",
			},
		)

		cacheReadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "videocache_reads_total",
				Help: "Total cache reads, labeled by tier and hit/miss.",
			},
			[]string{"tier", "result"},
		)

		providerBatchItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_batch_items_total",
				Help: "Batch metadata items, labeled by source (provider/fallback/skipped).",
			},
			[]string{"source"},
		)

		reviewAlertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_alerts_total",
				Help: "Review alerts emitted, labeled by kind.",
			},
			[]string{"kind"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution records the outcome of one URL resolution.
func ObserveResolution(method string, needsReview bool, confidence int, duration time.Duration) {
	Init()
	resolutionsTotal.WithLabelValues(method, strconv.FormatBool(needsReview)).Inc()
	resolutionConfidence.WithLabelValues(method).Observe(float64(confidence))
	resolutionDurationSeconds.Observe(duration.Seconds())
}

// ObserveFetchAttempt records a single page fetch attempt.
func ObserveFetchAttempt(site string, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveIdentityRotation increments the rotation counter.
func ObserveIdentityRotation() {
	Init()
	identityRotationsTotal.Inc()
}

// ObserveRenderedFetch increments the headless fetch counter.
func ObserveRenderedFetch() {
	Init()
	renderedFetchesTotal.Inc()
}

// ObserveCacheRead records a cache tier read.
func ObserveCacheRead(tier string, hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheReadsTotal.WithLabelValues(tier, result).Inc()
}

// ObserveProviderBatch records how a batch's items were sourced.
func ObserveProviderBatch(fromProvider, fromFallback, skipped int) {
	Init()
	providerBatchItemsTotal.WithLabelValues("provider").Add(float64(fromProvider))
	providerBatchItemsTotal.WithLabelValues("fallback").Add(float64(fromFallback))
	providerBatchItemsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveReviewAlert increments the alert counter for the given kind.
func ObserveReviewAlert(kind string) {
	Init()
	reviewAlertsTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
