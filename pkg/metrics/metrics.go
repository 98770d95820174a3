// Package metrics exposes the Prometheus metrics of the screener packages.
// Collectors live next to the code they measure (client, pagination,
// ratelimit) and register with the default registry through promauto; this
// package serves them and documents the catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every screener collector is attached to.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source read by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Catalogue lists every metric family the screener packages define.
var Catalogue = []string{
	"screener_requests_total",
	"screener_request_duration_seconds",
	"screener_errors_total",
	"screener_retries_total",
	"screener_retry_backoff_seconds",
	"screener_retry_exhausted_total",
	"screener_pages_fetched_total",
	"screener_records_retrieved_total",
	"screener_retrieval_duration_seconds",
	"screener_retrievals_total",
	"screener_budget_remaining",
	"screener_budget_waits_total",
	"screener_budget_wait_seconds",
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - screener_requests_total{status} (Counter): Page requests by HTTP status or network_error
//   - screener_request_duration_seconds (Histogram): Dispatch duration, retries included
//   - screener_errors_total{class} (Counter): Errors by class (client, server, network, unexpected)
//
// Retry Metrics (pkg/client):
//   - screener_retries_total{error_class} (Counter): Retry attempts by error class
//   - screener_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - screener_retry_exhausted_total{error_class} (Counter): Requests that exhausted their attempts
//
// Retrieval Metrics (pkg/pagination):
//   - screener_pages_fetched_total (Counter): Pages fetched and decoded
//   - screener_records_retrieved_total (Counter): Records returned by successful retrievals
//   - screener_retrieval_duration_seconds (Histogram): Whole-retrieval duration
//   - screener_retrievals_total{outcome} (Counter): Retrievals by outcome
//     (success, invalid_argument, connectivity, decoding, policy, cancelled, error)
//
// Budget Metrics (pkg/ratelimit):
//   - screener_budget_remaining (Gauge): Requests left in the current window
//   - screener_budget_waits_total (Counter): Requests that waited for a window reset
//   - screener_budget_wait_seconds (Histogram): Time spent waiting
//
// Example Prometheus Queries:
//
//   # Failed retrievals by outcome
//   sum by (outcome) (rate(screener_retrievals_total{outcome!="success"}[5m]))
//
//   # Pages per retrieval
//   rate(screener_pages_fetched_total[5m]) / rate(screener_retrievals_total[5m])
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(screener_request_duration_seconds_bucket[5m]))
//
//   # Budget pressure
//   rate(screener_budget_waits_total[5m]) > 0
