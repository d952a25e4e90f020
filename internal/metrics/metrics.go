// Package metrics defines the Prometheus instrumentation for the crawler
// and the small ops HTTP surface that exposes it.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novacrawler_pages_total",
			Help: "Pages processed by the crawl worker pool, labeled by result.",
		},
		[]string{"result"},
	)

	retryTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novacrawler_rate_limit_retries_total",
			Help: "Retries performed after HTTP 429 responses.",
		},
	)

	faviconTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novacrawler_favicons_total",
			Help: "Favicon resolution attempts, labeled by result.",
		},
		[]string{"result"},
	)

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novacrawler_tasks_total",
			Help: "Tasks resolved by the dispatcher, labeled by final status.",
		},
		[]string{"status"},
	)

	politenessDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novacrawler_politeness_delay_seconds",
			Help:    "Delay introduced by the per-domain politeness limiter.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"domain"},
	)
)

// Page result labels.
const (
	PageSaved       = "saved"
	PageUpdated     = "updated"
	PageSkipped     = "skipped"
	PageDeleted     = "deleted"
	PageFailed      = "failed"
	PageRateLimited = "rate_limited"
)

// CountPage records the outcome of one frontier entry.
func CountPage(result string) {
	pagesTotal.WithLabelValues(result).Inc()
}

// CountRetry records one 429-triggered retry attempt.
func CountRetry() {
	retryTotal.Inc()
}

// CountFavicon records a favicon resolution outcome ("resolved" or "none").
func CountFavicon(result string) {
	faviconTotal.WithLabelValues(result).Inc()
}

// CountTask records a task reaching a final status.
func CountTask(status string) {
	tasksTotal.WithLabelValues(status).Inc()
}

// ObservePolitenessDelay records time spent waiting on the per-domain
// limiter before a fetch.
func ObservePolitenessDelay(domain string, d time.Duration) {
	politenessDelaySeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// Handler returns the ops router exposing liveness and the Prometheus
// registry. The dashboard task surface is intentionally not served here.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
