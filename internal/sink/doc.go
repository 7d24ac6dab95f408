// Package sink provides the InfluxDB write-through sink for telemetry
// snapshots.
//
// Every scheduler tick writes the freshest sample of each kind as one
// point in the power_monitoring measurement. The sink tolerates an
// unavailable InfluxDB: writes are dropped while disconnected, and
// reconnection is attempted lazily on the next write once the backoff
// delay has elapsed since the last connection attempt. The delay
// starts at five seconds and doubles on each failed attempt to a
// sixty-second cap; a failed write disconnects but does not grow the
// delay. It is not reset on success: a flapping server settles at the
// cap rather than retrying every five seconds.
package sink
