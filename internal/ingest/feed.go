package ingest

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sotehus/sotehus-core/internal/infrastructure/mqtt"
	"github.com/sotehus/sotehus-core/internal/metrics"
)

// Broker is the subset of the MQTT client the feed depends on.
// *mqtt.Client satisfies it.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	Close() error
}

// Logger is the minimal logging interface the feed needs.
// *logging.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

// Callback is invoked after each accepted reading. The stored value
// and timestamp are already updated when the callback runs.
type Callback func(value float64, observedAt time.Time)

// Feed receives grid power readings pushed by the meter over MQTT.
//
// Payloads are plain UTF-8 decimal numbers (watts), optionally padded
// with whitespace. Unparseable payloads are logged and dropped; the
// last accepted value is retained.
//
// Thread Safety: all methods are safe for concurrent use.
type Feed struct {
	broker Broker
	topic  string
	qos    byte

	mu         sync.RWMutex
	value      float64
	observedAt time.Time
	set        bool

	callbackMu sync.RWMutex
	callback   Callback

	loggerMu sync.RWMutex
	logger   Logger

	now func() time.Time
}

// New creates a feed over an established broker connection.
//
// Parameters:
//   - broker: Connected MQTT client
//   - topic: Topic the meter publishes readings to
//   - qos: Subscription QoS level
func New(broker Broker, topic string, qos byte) *Feed {
	return &Feed{
		broker: broker,
		topic:  topic,
		qos:    qos,
		now:    time.Now,
	}
}

// Start subscribes to the meter topic. Readings flow from this point on.
//
// Returns:
//   - error: If the subscription fails
func (f *Feed) Start() error {
	return f.broker.Subscribe(f.topic, f.qos, f.handleMessage)
}

// handleMessage decodes one meter payload.
//
// The stored value and timestamp are updated before the callback fires,
// so a callback reading CurrentValue always sees the new reading.
func (f *Feed) handleMessage(_ string, payload []byte) error {
	text := strings.TrimSpace(string(payload))

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		metrics.IncFeedDrop()
		f.logWarn("dropping unparseable power reading",
			"topic", f.topic, "payload", text)
		return nil
	}

	observedAt := f.now()

	f.mu.Lock()
	f.value = value
	f.observedAt = observedAt
	f.set = true
	f.mu.Unlock()

	f.callbackMu.RLock()
	callback := f.callback
	f.callbackMu.RUnlock()

	if callback != nil {
		callback(value, observedAt)
	}

	return nil
}

// CurrentValue returns the last accepted reading.
//
// Returns:
//   - float64: The reading in watts
//   - time.Time: When it was received
//   - bool: false if no reading has been accepted yet
func (f *Feed) CurrentValue() (float64, time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value, f.observedAt, f.set
}

// SetCallback registers a function invoked on every accepted reading.
// Pass nil to remove the callback.
func (f *Feed) SetCallback(callback Callback) {
	f.callbackMu.Lock()
	defer f.callbackMu.Unlock()
	f.callback = callback
}

// IsConnected reports whether the underlying broker connection is up.
func (f *Feed) IsConnected() bool {
	return f.broker.IsConnected()
}

// Close unsubscribes from the meter topic. The broker connection is
// owned by the caller and stays open.
//
// Returns:
//   - error: If the unsubscribe fails
func (f *Feed) Close() error {
	return f.broker.Unsubscribe(f.topic)
}

// SetLogger sets the logger for dropped payloads.
func (f *Feed) SetLogger(logger Logger) {
	f.loggerMu.Lock()
	defer f.loggerMu.Unlock()
	f.logger = logger
}

func (f *Feed) logWarn(msg string, args ...any) {
	f.loggerMu.RLock()
	defer f.loggerMu.RUnlock()
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
