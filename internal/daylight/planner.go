package daylight

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Planning constants.
const (
	// minIntervalMinutes is the floor for the computed poll interval.
	minIntervalMinutes = 5

	// fallbackIntervalMinutes is used when the daylight window cannot
	// be determined or the call budget is exhausted.
	fallbackIntervalMinutes = 10

	// fallbackSunriseHour and fallbackSunsetHour bound the assumed
	// daylight window when astronomical times are unavailable
	// (polar day/night at high latitudes).
	fallbackSunriseHour = 6
	fallbackSunsetHour  = 20
)

// SunTimesFunc computes sunrise and sunset (UTC) for a date at a
// location. Both return values are zero when the sun never rises or
// never sets on that day.
type SunTimesFunc func(latitude, longitude float64, year int, month time.Month, day int) (time.Time, time.Time)

// Planner computes daylight windows and budget-aware poll intervals
// for the solar production source.
//
// Solar panels produce nothing at night, so polling outside the
// daylight window wastes API budget. The planner spreads the allowed
// daily calls evenly across the daylight minutes of the current day.
//
// Thread Safety: Planner is immutable after construction and safe for
// concurrent use.
type Planner struct {
	latitude  float64
	longitude float64
	location  *time.Location
	sunTimes  SunTimesFunc
}

// NewPlanner creates a planner for the given coordinates.
//
// Parameters:
//   - latitude: Site latitude in decimal degrees
//   - longitude: Site longitude in decimal degrees
//   - location: Timezone the site operates in (nil means UTC)
func NewPlanner(latitude, longitude float64, location *time.Location) *Planner {
	if location == nil {
		location = time.UTC
	}
	return &Planner{
		latitude:  latitude,
		longitude: longitude,
		location:  location,
		sunTimes:  sunrise.SunriseSunset,
	}
}

// SetSunTimes overrides the astronomical calculation. Used in tests.
func (p *Planner) SetSunTimes(fn SunTimesFunc) {
	if fn != nil {
		p.sunTimes = fn
	}
}

// SunWindow returns the local sunrise and sunset for the date of t.
//
// Returns:
//   - sunrise, sunset: Window boundaries in the planner's timezone
//   - ok: false when the sun never rises or never sets that day
func (p *Planner) SunWindow(t time.Time) (time.Time, time.Time, bool) {
	local := t.In(p.location)
	rise, set := p.sunTimes(p.latitude, p.longitude, local.Year(), local.Month(), local.Day())
	if rise.IsZero() || set.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	return rise.In(p.location), set.In(p.location), true
}

// IsSunUp reports whether the sun is up at time t.
//
// The sunrise and sunset instants themselves count as "up". When the
// astronomical window is unavailable, local hours 6 through 20
// inclusive count as daylight.
func (p *Planner) IsSunUp(t time.Time) bool {
	rise, set, ok := p.SunWindow(t)
	if !ok {
		hour := t.In(p.location).Hour()
		return hour >= fallbackSunriseHour && hour <= fallbackSunsetHour
	}
	return !t.Before(rise) && !t.After(set)
}

// PlannedInterval computes the poll interval that spreads the usable
// daily call budget across the day's daylight minutes.
//
// The usable budget is floor(dailyBudget * usableFraction). The
// interval is daylight minutes divided by that budget, floored at
// five minutes. When the daylight window or the budget is unusable,
// the ten-minute fallback applies.
//
// Parameters:
//   - t: Any instant on the day being planned
//   - dailyBudget: Total API calls permitted per day
//   - usableFraction: Share of the budget to actually spend (0..1]
//
// Returns:
//   - time.Duration: The interval between solar polls
func (p *Planner) PlannedInterval(t time.Time, dailyBudget int, usableFraction float64) time.Duration {
	rise, set, ok := p.SunWindow(t)
	if !ok {
		return fallbackIntervalMinutes * time.Minute
	}

	usable := int(float64(dailyBudget) * usableFraction)
	if usable <= 0 {
		return fallbackIntervalMinutes * time.Minute
	}

	daylightMinutes := int(set.Sub(rise).Minutes())
	if daylightMinutes <= 0 {
		return fallbackIntervalMinutes * time.Minute
	}

	interval := daylightMinutes / usable
	if interval < minIntervalMinutes {
		interval = minIntervalMinutes
	}
	return time.Duration(interval) * time.Minute
}
