// Package metrics documents the Prometheus metrics exported by this module.
// Metrics are defined in their respective packages (batch, client, redisfetch)
// to keep packages independent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry all metrics are registered with via promauto.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Batch Coordinator Metrics (pkg/batch), labelled by batcher name:
//   - fetch_batch_requests_total{batcher} (Counter): Keys requested
//   - fetch_batch_orphaned_total{batcher} (Counter): Pending requests overwritten by a later request for the same key
//   - fetch_batch_flushes_total{batcher} (Counter): Flush cycles started
//   - fetch_batch_chunks_total{batcher, outcome} (Counter): Chunks dispatched by outcome (success, failure)
//   - fetch_batch_chunk_size{batcher} (Histogram): Keys per chunk
//   - fetch_batch_chunk_duration_seconds{batcher} (Histogram): Batch fetch call duration
//   - fetch_batch_not_found_total{batcher} (Counter): Keys no batch response mentioned
//
// HTTP Client Metrics (pkg/client):
//   - fetch_http_requests_total{status} (Counter): Upstream requests by HTTP status
//   - fetch_http_request_duration_seconds (Histogram): Upstream request duration
//   - fetch_http_errors_total{class} (Counter): Upstream errors by class (client, server, network)
//
// Redis Source Metrics (pkg/redisfetch):
//   - fetch_redis_mget_total{result} (Counter): MGET calls by result (ok, error)
//   - fetch_redis_keys_total{result} (Counter): Keys looked up by result (hit, miss)
//
// Example Prometheus Queries:
//
//   # Average keys per upstream call
//   rate(fetch_batch_chunk_size_sum[5m]) / rate(fetch_batch_chunk_size_count[5m])
//
//   # Share of requested keys rejected as not found
//   rate(fetch_batch_not_found_total[5m]) / rate(fetch_batch_requests_total[5m])
//
//   # Chunk failure rate
//   rate(fetch_batch_chunks_total{outcome="failure"}[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(fetch_http_request_duration_seconds_bucket[5m]))
