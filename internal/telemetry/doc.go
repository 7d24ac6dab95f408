// Package telemetry defines the shared state store at the heart of
// Sotehus Core.
//
// All readings flow through a single Store: the MQTT power feed and the
// HTTP pollers write the latest sample per kind, and the scheduler, API
// handlers and websocket sessions read them back. The store additionally
// tracks live observer counts (used to gate polling) and owns lazily
// constructed shared resources such as the InfluxDB sink.
package telemetry
