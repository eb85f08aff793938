// Package metrics exposes Prometheus collectors for the directory service.
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
	pagesFetchedTotal          *prometheus.CounterVec
	syncServersTotal           *prometheus.CounterVec
	syncJobsTotal              *prometheus.CounterVec
	healthChecksTotal          *prometheus.CounterVec
	healthCheckLatencySeconds  *prometheus.HistogramVec
	cacheLookupsTotal          *prometheus.CounterVec
	rollupRunsTotal            prometheus.Counter
	rollupSamplesPruned        prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_pages_fetched_total",
				Help: "Total number of upstream pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		syncServersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_sync_servers_total",
				Help: "Total servers processed by sync jobs, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		syncJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_sync_jobs_total",
				Help: "Total number of sync jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		healthChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_health_checks_total",
				Help: "Total health checks performed, labeled by result status.",
			},
			[]string{"status"},
		)

		healthCheckLatencySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpindex_health_check_latency_seconds",
				Help:    "Histogram of health check latencies, labeled by result status.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"status"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpindex_cache_lookups_total",
				Help: "Total cache lookups, labeled by result (hit/miss).",
			},
			[]string{"result"},
		)

		rollupRunsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mcpindex_rollup_runs_total",
				Help: "Total number of health rollup aggregation runs.",
			},
		)

		rollupSamplesPruned = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mcpindex_rollup_samples_pruned_total",
				Help: "Total health samples deleted by retention pruning.",
			},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpindex_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObserveFetch increments the page fetch counter.
func ObserveFetch(site string, status string) {
	pagesFetchedTotal.WithLabelValues(SanitizeSite(site), status).Inc()
}

// ObserveSyncServer records a single server outcome within a sync job.
func ObserveSyncServer(source, outcome string) {
	syncServersTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveSyncJob increments the job counter for the given status.
func ObserveSyncJob(status string) {
	syncJobsTotal.WithLabelValues(status).Inc()
}

// ObserveHealthCheck records a health check result and its latency.
func ObserveHealthCheck(status string, duration time.Duration) {
	healthChecksTotal.WithLabelValues(status).Inc()
	healthCheckLatencySeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveRollupRun records one aggregation pass and the rows it pruned.
func ObserveRollupRun(pruned int64) {
	rollupRunsTotal.Inc()
	if pruned > 0 {
		rollupSamplesPruned.Add(float64(pruned))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
