// Package database provides SQLite connectivity for Sotehus Core.
//
// The database backs the local sample history (see internal/history);
// the authoritative time-series store is InfluxDB (see internal/sink).
// SQLite keeps a short window of recent samples queryable without a
// round-trip to the sink, and survives sink outages.
package database
