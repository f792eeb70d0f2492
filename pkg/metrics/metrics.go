// Package metrics exposes the Prometheus registry of the Notion posts
// service. Metrics are defined in their own packages (throttle, batch,
// posts, notion, cache) via promauto and register with the default
// registry; this package serves them and documents the catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by all packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics of Gatherer in the Prometheus exposition
// format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Retry Metrics (pkg/throttle):
//   - notion_retries_total{label, error_class} (Counter): Retries by operation and error class (overload, other)
//   - notion_retry_backoff_seconds{label} (Histogram): Backoff waits by operation
//   - notion_retry_exhausted_total{label} (Counter): Operations that exhausted all attempts
//
// Batch Metrics (pkg/batch):
//   - notion_block_batches_total{outcome} (Counter): Block batches by outcome (ok, failed)
//
// Assembly Metrics (pkg/posts):
//   - notion_assemble_total{stage} (Counter): Assembly runs by the stage they ended in (done on success)
//   - notion_assemble_duration_seconds (Histogram): Assembly run duration
//   - notion_posts_skipped_total{reason} (Counter): Child pages skipped (missing_block, no_properties, malformed_block)
//
// Request Metrics (pkg/notion):
//   - notion_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - notion_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - notion_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Cache Metrics (pkg/cache):
//   - notion_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - notion_cache_misses_total (Counter): Cache misses
//   - notion_cache_size_bytes{layer="redis"} (Counter): Bytes written to the cache
//   - notion_cache_304_responses_total (Counter): 304 Not Modified responses
//   - notion_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Overload Retry Rate
//   sum(rate(notion_retries_total{error_class="overload"}[5m]))
//
//   # Failed Assemblies
//   sum by (stage) (rate(notion_assemble_total{stage!="done"}[15m]))
//
//   # Cache Hit Rate
//   sum(rate(notion_cache_hits_total[5m])) /
//   (sum(rate(notion_cache_hits_total[5m])) + sum(rate(notion_cache_misses_total[5m])))
//
//   # P95 Notion Latency
//   histogram_quantile(0.95, rate(notion_request_duration_seconds_bucket[5m]))
