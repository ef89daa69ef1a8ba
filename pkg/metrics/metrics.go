// Package metrics provides the central Prometheus registry reference for
// dataset-sync. Metrics are defined in their owning packages (client,
// pagination) via promauto to keep modularity and avoid circular imports.
//
// This package documents the available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by dataset-sync.
// All metrics register automatically via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - source_requests_total{status} (Counter): Requests by HTTP status (or network_error)
//   - source_request_duration_seconds (Histogram): Page request duration
//   - source_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Batch Fetch Metrics (pkg/pagination):
//   - pages_fetched_total (Counter): Pages fetched across runs
//   - batch_fetch_duration_seconds (Histogram): Full batch fetch duration
//
// Example Prometheus Queries:
//
//   # Request error rate
//   rate(source_errors_total[5m])
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(source_request_duration_seconds_bucket[5m]))
