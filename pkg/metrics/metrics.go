// Package metrics provides the centralized Prometheus metrics reference
// for the follower enrichment service. All metrics are defined in their
// respective packages (provider, ratelimit, enrich) via promauto to
// maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Provider Request Metrics (pkg/provider):
//   - provider_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - provider_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - provider_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/provider):
//   - provider_retries_total{error_class} (Counter): Retry attempts by error class
//   - provider_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - provider_retry_exhausted_total{error_class} (Counter): Calls that exhausted max attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - provider_rate_limit_cooldowns_total (Counter): 429 observations that recorded a cooldown
//   - provider_rate_limit_cooldown_seconds (Histogram): Recorded cooldown durations
//   - provider_rate_limit_waits_total (Counter): Requests delayed by an active cooldown
//
// Pipeline Metrics (pkg/enrich):
//   - enrich_pages_total{outcome} (Counter): Pages by outcome (ok, empty, error, cancelled)
//   - enrich_page_duration_seconds (Histogram): End-to-end page enrichment duration
//   - enrich_lookup_failures_total (Counter): Lookups dropped after retry exhaustion
//   - enrich_filtered_total (Counter): Enriched followers excluded by the threshold
//
// Example Prometheus Queries:
//
//   # Lookup failure rate
//   rate(enrich_lookup_failures_total[5m]) / rate(provider_requests_total{endpoint="/v1/user/by/id"}[5m])
//
//   # Retry exhaustion by class
//   rate(provider_retry_exhausted_total[5m])
//
//   # P95 page enrichment latency
//   histogram_quantile(0.95, rate(enrich_page_duration_seconds_bucket[5m]))
//
//   # Cooldown pressure
//   rate(provider_rate_limit_waits_total[5m])
