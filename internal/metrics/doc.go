// Package metrics exposes Prometheus instrumentation for Sotehus Core:
// source fetch counts and latency, sink write and reconnect counters,
// feed accept/drop counters, and observer/interval gauges. Metrics are
// served on /metrics by the API server.
package metrics
