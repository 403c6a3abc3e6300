// Package prometheus exposes authgate engine counters and the limiter latency
// histogram as a Prometheus collector.
//
// [NewCollector] reads [authgate.Engine.MetricsSnapshot] on every scrape and
// emits const metrics, so the engine keeps its lock-free counters and never
// touches a Prometheus registry itself. Callers register the collector on
// their own registry and serve it with promhttp.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry.
//   - Mutate engine state.
package prometheus
