// Package metrics provides the Prometheus registry used by the Fast Purge client.
// Metrics are defined in their respective packages (client, cooldown) to keep
// packages independent; this package documents them in one place.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the Fast Purge client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer exposes the registered metrics, e.g. to promhttp.HandlerFor.
var Gatherer = prometheus.DefaultGatherer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - fastpurge_requests_total{object_type, status} (Counter): Requests by HTTP status
//   - fastpurge_request_duration_seconds{object_type} (Histogram): Request duration
//   - fastpurge_errors_total{class} (Counter): Errors by class (client, auth, server, rate_limit, network)
//   - fastpurge_chunks_total{object_type} (Counter): Chunks submitted
//   - fastpurge_objects_total{object_type} (Counter): Objects submitted
//   - fastpurge_inflight_requests (Gauge): Chunks holding a worker slot
//
// Retry Metrics (pkg/client):
//   - fastpurge_retries_total{error_class} (Counter): Retry attempts by error class
//   - fastpurge_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - fastpurge_retry_exhausted_total{error_class} (Counter): Chunks that exhausted max retries
//
// Cooldown Metrics (pkg/cooldown):
//   - fastpurge_cooldown_blocks_total (Counter): Retry-After deadlines recorded
//   - fastpurge_cooldown_waits_total (Counter): Requests delayed by a cooldown
//   - fastpurge_cooldown_seconds (Histogram): Time spent waiting for a cooldown
//
// Example Prometheus Queries:
//
//   # Purge error rate
//   sum(rate(fastpurge_errors_total[5m])) by (class)
//
//   # Share of requests rate limited
//   sum(rate(fastpurge_requests_total{status="429"}[5m])) / sum(rate(fastpurge_requests_total[5m]))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(fastpurge_request_duration_seconds_bucket[5m]))
