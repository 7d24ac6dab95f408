// Package ingest decodes the push-based grid power feed.
//
// The meter publishes its instantaneous power reading (watts, plain
// decimal text) to a single MQTT topic. The feed subscribes, parses
// each payload, keeps the latest accepted value, and notifies a
// callback so the reading can be mirrored into the telemetry store.
package ingest
