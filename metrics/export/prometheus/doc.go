// Package prometheus renders siteauth engine counters as Prometheus text.
//
// [Exporter.Handler] is mounted at /metrics by the HTTP server. Counter names
// are siteauth_*_total; the access-validation latency histogram is
// siteauth_validate_latency_seconds and only appears when latency metrics are
// enabled.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry.
//   - Mutate engine state.
package prometheus
