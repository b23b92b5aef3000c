// Package metrics exposes Prometheus collectors for the rank tracker.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Crawl outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeCached   = "cached"
	OutcomeDeadline = "deadline"
	OutcomeFailed   = "failed"
)

var (
	crawlsTotal                *prometheus.CounterVec
	crawlDurationSeconds       prometheus.Histogram
	pagesFetchedTotal          *prometheus.CounterVec
	targetsFoundTotal          *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	detailFetchesTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	navigationWaitSeconds      prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankwatch_crawls_total",
				Help: "Total number of rank crawls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rankwatch_crawl_duration_seconds",
				Help:    "Histogram of end-to-end crawl durations.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90},
			},
		)

		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankwatch_pages_fetched_total",
				Help: "Total number of search pages fetched, labeled by region and whether cards were present.",
			},
			[]string{"region", "status"},
		)

		targetsFoundTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankwatch_targets_found_total",
				Help: "Total number of resolved targets, labeled by role and whether they were found.",
			},
			[]string{"role", "found"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankwatch_cache_lookups_total",
				Help: "Total number of same-day cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		detailFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankwatch_detail_fetches_total",
				Help: "Total number of product detail fetches, labeled by fetch mode and status.",
			},
			[]string{"mode", "status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"method", "route"},
		)

		navigationWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rankwatch_navigation_rate_limit_seconds",
				Help:    "Histogram of time spent waiting for the navigation rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl records a finished crawl.
func ObserveCrawl(outcome string, duration time.Duration) {
	Init()
	crawlsTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeCached {
		crawlDurationSeconds.Observe(duration.Seconds())
	}
}

// ObservePage records one fetched search page.
func ObservePage(region string, hadCards bool) {
	Init()
	status := "cards"
	if !hadCards {
		status = "empty"
	}
	pagesFetchedTotal.WithLabelValues(region, status).Inc()
}

// ObserveTarget records whether a target was located in the primary region.
func ObserveTarget(role string, found bool) {
	Init()
	targetsFoundTotal.WithLabelValues(role, strconv.FormatBool(found)).Inc()
}

// ObserveCacheLookup records a same-day cache lookup.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveDetailFetch records a product detail fetch.
func ObserveDetailFetch(headless bool, err error) {
	Init()
	mode := "http"
	if headless {
		mode = "headless"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	detailFetchesTotal.WithLabelValues(mode, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveNavigationWait records a navigation rate-limit wait.
func ObserveNavigationWait(duration time.Duration) {
	Init()
	navigationWaitSeconds.Observe(duration.Seconds())
}
