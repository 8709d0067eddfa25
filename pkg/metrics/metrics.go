// Package metrics exposes the Prometheus metrics of the comment feed.
// All metrics are defined in their respective packages (client, ratelimit, trigger, feed)
// and registered via promauto, so this package only serves them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry the feed packages register with.
var Registry = prometheus.DefaultRegisterer

// Path is the HTTP path metrics are served on.
const Path = "/metrics"

// Handler returns the HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewServer returns an HTTP server exposing Handler on Path and a /health probe.
// The caller starts and shuts it down.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(Path, Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - comments_requests_total{status} (Counter): Page requests by HTTP status
//   - comments_request_duration_seconds (Histogram): Page request duration
//   - comments_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, parse)
//   - comments_cancelled_total (Counter): Requests abandoned because their context was cancelled
//
// Rate Limit Metrics (pkg/ratelimit):
//   - comments_rate_limit_remaining (Gauge): Requests remaining in the advertised window
//   - comments_rate_limit_blocks_total (Counter): Requests blocked on an exhausted budget
//   - comments_rate_limit_throttles_total (Counter): Requests delayed on a low budget
//
// Trigger Metrics (pkg/trigger):
//   - feed_trigger_fired_total (Counter): Visibility events that started a load
//   - feed_trigger_ignored_total (Counter): Visibility events ignored while loading
//
// Feed Metrics (pkg/feed):
//   - feed_pages_loaded_total (Counter): Non-empty pages applied
//   - feed_comments_loaded_total (Counter): Comments appended
//   - feed_duplicates_skipped_total (Counter): Comments skipped as already loaded
//   - feed_load_failures_total (Counter): Page loads that ended in an error
//   - feed_discarded_responses_total{reason} (Counter): Responses dropped (cancelled, superseded, closed)
//
// Example Prometheus Queries:
//
//   # Page Error Rate
//   rate(comments_errors_total[5m])
//
//   # P95 Page Latency
//   histogram_quantile(0.95, rate(comments_request_duration_seconds_bucket[5m]))
//
//   # Share of loads started by the sentinel that were ignored
//   rate(feed_trigger_ignored_total[5m]) /
//   (rate(feed_trigger_fired_total[5m]) + rate(feed_trigger_ignored_total[5m]))
