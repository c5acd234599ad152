// Package metrics exposes Prometheus collectors for the archive scraper.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal             *prometheus.CounterVec
	fetchBytesTotal        *prometheus.CounterVec
	fetchDurationSeconds   *prometheus.HistogramVec
	listPagesTotal         *prometheus.CounterVec
	detailsTotal           *prometheus.CounterVec
	xmlFetchTotal          *prometheus.CounterVec
	papersTotal            *prometheus.CounterVec
	rateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times and every
// Observe helper calls it.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmt_fetch_total",
				Help: "Plain HTTP fetches, labeled by site and status code (0 for transport errors).",
			},
			[]string{"site", "code"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmt_fetch_bytes_total",
				Help: "Bytes received by plain HTTP fetches, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmt_fetch_duration_seconds",
				Help:    "Latency of plain HTTP fetches, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"site"},
		)

		listPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmt_list_pages_total",
				Help: "Browser page loads, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		detailsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmt_details_total",
				Help: "Detail pages visited, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		xmlFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmt_xml_fetch_total",
				Help: "Reaction XML lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		papersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmt_papers_total",
				Help: "Papers walked, labeled by status.",
			},
			[]string{"status"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmt_rate_limit_delays_seconds",
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

// NewRouter mounts /metrics and /healthz.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", Handler())
	return r
}

// ObserveFetch records one plain HTTP fetch. code is zero for transport errors.
func ObserveFetch(rawURL string, code int, duration time.Duration, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	fetchTotal.WithLabelValues(site, strconv.Itoa(code)).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveListPage counts a browser page load by outcome (loaded, timeout, error).
func ObserveListPage(outcome string) {
	Init()
	listPagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDetail counts a detail page by outcome (recorded, skipped).
func ObserveDetail(outcome string) {
	Init()
	detailsTotal.WithLabelValues(outcome).Inc()
}

// ObserveXML counts a reaction XML lookup by outcome.
func ObserveXML(outcome string) {
	Init()
	xmlFetchTotal.WithLabelValues(outcome).Inc()
}

// ObservePaper counts a finished paper (ok, error).
func ObservePaper(status string) {
	Init()
	papersTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
