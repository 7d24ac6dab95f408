// Package history keeps a rolling window of telemetry samples in
// SQLite for the local API.
//
// InfluxDB remains the authoritative time-series store; this window
// only serves recent-sample queries locally and is pruned on a
// retention schedule.
package history
