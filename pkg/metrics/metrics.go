// Package metrics provides the central Prometheus registry reference for the
// wikiquery client. All metrics are defined in their respective packages
// (client, query, ratelimit, canonical) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - mw_requests_total{action, status} (Counter): Total requests by action and outcome
//   - mw_request_duration_seconds{action} (Histogram): Request duration by action
//   - mw_errors_total{class} (Counter): Errors by class (invalid_request, remote, transport)
//
// Retry Metrics (pkg/client):
//   - mw_retries_total{error_class} (Counter): Request-level retry attempts by error class
//   - mw_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - mw_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - mw_lag_errors_recent (Gauge): Lag/throttle errors in the current window
//   - mw_rate_limit_blocks_total (Counter): Requests blocked due to critical lag state
//   - mw_rate_limit_throttles_total (Counter): Requests throttled due to recent lag errors
//
// Query Engine Metrics (pkg/query):
//   - mw_batches_total{kind, outcome} (Counter): Executed batches by reference kind and outcome
//   - mw_batch_size (Gauge): Current adaptive batch size
//   - mw_waves_total{outcome} (Counter): Adaptive controller waves by outcome
//   - mw_continuation_pages_total (Counter): Continuation pages consumed
//
// Store Metrics (pkg/canonical):
//   - mw_store_entries{map} (Gauge): Entries per canonicalization map
//
// Example Prometheus Queries:
//
//   # Request error rate
//   rate(mw_errors_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(mw_request_duration_seconds_bucket[5m]))
//
//   # Batch failure ratio
//   sum(rate(mw_batches_total{outcome="error"}[5m])) /
//   sum(rate(mw_batches_total[5m]))
//
//   # Current adaptive batch size
//   mw_batch_size
