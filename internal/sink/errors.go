package sink

import "errors"

// Domain-specific errors for sink operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDisabled is returned when the InfluxDB sink is disabled in config.
	ErrDisabled = errors.New("sink: influxdb disabled in configuration")

	// ErrMissingCredentials is returned when neither a token nor a
	// username/password pair is configured.
	ErrMissingCredentials = errors.New("sink: token or username/password required")

	// ErrNotConnected is returned when a write is attempted while the
	// sink is disconnected and not yet due for a reconnect attempt.
	ErrNotConnected = errors.New("sink: not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("sink: connection failed")
)
