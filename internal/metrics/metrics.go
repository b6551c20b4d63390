// Package metrics exposes Prometheus collectors for the sitemap tracker.
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
	crawlsTotal                *prometheus.CounterVec
	crawlURLs                  prometheus.Histogram
	diffItemsTotal             *prometheus.CounterVec
	sitemapFetchesTotal        *prometheus.CounterVec
	chainDeletionsTotal        *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; the Observe helpers call it
// on first use.
func Init() {
	once.Do(func() {
		crawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_crawls_total",
				Help: "Total number of site crawls, labeled by status.",
			},
			[]string{"status"},
		)

		crawlURLs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracker_crawl_urls",
				Help:    "Number of URLs found per crawl.",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
		)

		diffItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_diff_items_total",
				Help: "Total number of diff items recorded, labeled by action.",
			},
			[]string{"action"},
		)

		sitemapFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_sitemap_fetches_total",
				Help: "Total number of sitemap documents fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		chainDeletionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_chain_deletions_total",
				Help: "Total number of crawl deletions, labeled by chain position.",
			},
			[]string{"position"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_notifications_total",
				Help: "Total number of crawl notifications, labeled by outcome.",
			},
			[]string{"outcome"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracker_active_workers",
				Help: "Number of workers currently processing a crawl.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
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

// ObserveCrawl counts a finished crawl and, on success, its URL count.
func ObserveCrawl(status string, urls int) {
	Init()
	crawlsTotal.WithLabelValues(status).Inc()
	if urls >= 0 {
		crawlURLs.Observe(float64(urls))
	}
}

// ObserveDiff counts the diff items of a crawl.
func ObserveDiff(added, removed int) {
	Init()
	if added > 0 {
		diffItemsTotal.WithLabelValues("add").Add(float64(added))
	}
	if removed > 0 {
		diffItemsTotal.WithLabelValues("remove").Add(float64(removed))
	}
}

// ObserveSitemapFetch counts one sitemap document fetch.
func ObserveSitemapFetch(sitemapURL string, outcome string) {
	Init()
	sitemapFetchesTotal.WithLabelValues(SanitizeSite(sitemapURL), outcome).Inc()
}

// ObserveChainDeletion counts a crawl deletion at the given chain position.
func ObserveChainDeletion(position string) {
	Init()
	chainDeletionsTotal.WithLabelValues(position).Inc()
}

// ObserveNotification counts a crawl notification attempt.
func ObserveNotification(outcome string) {
	Init()
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
