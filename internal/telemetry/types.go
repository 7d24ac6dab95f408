package telemetry

import "time"

// Kind identifies a telemetry reading category.
//
// The store keeps the latest sample independently per kind, so a stale
// solar reading never blocks a fresh grid-power reading and vice versa.
type Kind string

// Telemetry kinds tracked by the store.
const (
	// KindGridPower is the instantaneous grid power draw in watts,
	// pushed by the meter over MQTT. Positive values mean import,
	// negative values mean export.
	KindGridPower Kind = "grid_power"

	// KindSpotPrice is the current electricity spot price in SEK/kWh,
	// polled from the day-ahead market feed.
	KindSpotPrice Kind = "spot_price"

	// KindSolarProduction is the current solar production in watts,
	// polled from the inverter cloud API.
	KindSolarProduction Kind = "solar_production"
)

// Valid reports whether k is a known telemetry kind.
func (k Kind) Valid() bool {
	switch k {
	case KindGridPower, KindSpotPrice, KindSolarProduction:
		return true
	}
	return false
}

// String returns the kind as a plain string.
func (k Kind) String() string {
	return string(k)
}

// Kinds returns all known telemetry kinds in stable order.
func Kinds() []Kind {
	return []Kind{KindGridPower, KindSpotPrice, KindSolarProduction}
}

// Sample is a single telemetry reading with its observation time.
type Sample struct {
	// Value is the reading, rounded to two decimal places by the store.
	Value float64 `json:"value"`

	// ObservedAt is when the reading was recorded into the store.
	ObservedAt time.Time `json:"observed_at"`
}

// Age returns how long ago the sample was observed relative to now.
func (s Sample) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}

// Snapshot is a point-in-time copy of the latest sample per kind.
// Kinds that have never received a reading are absent from the map.
type Snapshot map[Kind]Sample
