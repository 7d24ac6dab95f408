package scheduler

import (
	"context"
	"time"

	"github.com/sotehus/sotehus-core/internal/metrics"
	"github.com/sotehus/sotehus-core/internal/telemetry"
)

// defaultTick is the scheduler wake interval when none is configured.
const defaultTick = 60 * time.Second

// quarterHourMinutes divides the hour into settlement periods.
const quarterHourMinutes = 15

// PriceSource fetches the current spot price.
// *spotprice.Client satisfies it.
type PriceSource interface {
	Fetch(ctx context.Context) (float64, error)
}

// SolarSource fetches the current solar production in watts.
// *solaredge.Client satisfies it.
type SolarSource interface {
	CurrentProduction(ctx context.Context) (float64, error)
}

// DaylightPlanner gates and paces the solar source.
// *daylight.Planner satisfies it.
type DaylightPlanner interface {
	IsSunUp(t time.Time) bool
	PlannedInterval(t time.Time, dailyBudget int, usableFraction float64) time.Duration
}

// SnapshotWriter persists telemetry snapshots.
// *sink.Sink satisfies it.
type SnapshotWriter interface {
	Write(snap telemetry.Snapshot, ts time.Time) bool
}

// Recorder keeps local sample history.
// *history.Repository satisfies it.
type Recorder interface {
	Record(ctx context.Context, kind telemetry.Kind, value float64, observedAt time.Time) error
}

// Logger is the minimal logging interface the scheduler needs.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures a Scheduler. Store and Planner are required;
// every other collaborator is optional and its absence disables the
// corresponding behavior.
type Options struct {
	Store   *telemetry.Store
	Planner DaylightPlanner

	Price   PriceSource
	Solar   SolarSource
	Sink    SnapshotWriter
	History Recorder
	Logger  Logger

	// SolarDailyBudget and SolarUsableFraction feed the daylight
	// planner's interval computation.
	SolarDailyBudget    int
	SolarUsableFraction float64

	// Tick is the wake interval (zero means 60s).
	Tick time.Duration
}

// Scheduler is the sequential poll loop at the center of the process.
//
// On every tick it decides, per polled source, whether a fetch is due:
// the spot price fetches when a quarter-hour boundary has been crossed
// since its last successful fetch, and solar production fetches when
// the sun is up and the planned interval has elapsed. No polled fetch
// happens while nobody is observing the data. Successful fetches land
// in the store and write through to the sink with the freshest value
// of every kind.
//
// Thread Safety: the tick loop is sequential; ticks never overlap.
// HandlePowerReading may be called concurrently from the ingest
// goroutine.
type Scheduler struct {
	opts Options
	tick time.Duration

	// Schedule state, touched only by the tick loop.
	lastPriceFetch time.Time
	lastSolarFetch time.Time
	solarInterval  time.Duration
	lastPlanDay    time.Time

	now func() time.Time
}

// New creates a scheduler from the given options.
func New(opts Options) *Scheduler {
	tick := opts.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Scheduler{
		opts: opts,
		tick: tick,
		now:  time.Now,
	}
}

// Run executes the tick loop until ctx is cancelled.
//
// One tick runs immediately on start so the process does not sit idle
// for a full interval after boot.
//
// Parameters:
//   - ctx: Cancelling this context stops the loop
//
// Returns:
//   - error: Always nil; present for run-group symmetry
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick performs one scheduling pass.
func (s *Scheduler) runTick(ctx context.Context) {
	now := s.now()

	s.maybeRecomputeInterval(now)

	observers := s.opts.Store.Observers()
	metrics.SetObservers(observers)

	// Polling while nobody is watching wastes API budget.
	if observers == 0 {
		s.logDebug("no observers, skipping polled fetches")
		return
	}

	if s.priceDue(now) {
		s.fetchPrice(ctx, now)
	}
	if s.solarDue(now) {
		s.fetchSolar(ctx, now)
	}
}

// maybeRecomputeInterval refreshes the solar poll interval once per
// calendar day.
func (s *Scheduler) maybeRecomputeInterval(now time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if day.Equal(s.lastPlanDay) {
		return
	}
	s.lastPlanDay = day

	s.solarInterval = s.opts.Planner.PlannedInterval(now, s.opts.SolarDailyBudget, s.opts.SolarUsableFraction)
	metrics.SetSolarInterval(s.solarInterval)
	s.logInfo("recomputed solar poll interval",
		"interval", s.solarInterval.String(), "date", day.Format("2006-01-02"))
}

// priceDue reports whether the clock has crossed a quarter-hour
// boundary since the last successful price fetch.
func (s *Scheduler) priceDue(now time.Time) bool {
	if s.opts.Price == nil {
		return false
	}
	if s.lastPriceFetch.IsZero() {
		return true
	}
	return now.Hour() != s.lastPriceFetch.Hour() ||
		now.Minute()/quarterHourMinutes != s.lastPriceFetch.Minute()/quarterHourMinutes
}

// solarDue reports whether a solar fetch is due: sun up and planned
// interval elapsed since the last successful fetch.
func (s *Scheduler) solarDue(now time.Time) bool {
	if s.opts.Solar == nil {
		return false
	}
	if !s.opts.Planner.IsSunUp(now) {
		return false
	}
	if s.lastSolarFetch.IsZero() {
		return true
	}
	return now.Sub(s.lastSolarFetch) >= s.solarInterval
}

// fetchPrice polls the spot price source. A failed fetch does not
// advance the schedule, so the source retries on the next tick.
func (s *Scheduler) fetchPrice(ctx context.Context, now time.Time) {
	start := time.Now()
	value, err := s.opts.Price.Fetch(ctx)
	if err != nil {
		metrics.ObserveFetch("spot_price", metrics.ResultError, time.Since(start))
		s.logWarn("spot price fetch failed", "error", err)
		return
	}
	metrics.ObserveFetch("spot_price", metrics.ResultSuccess, time.Since(start))

	s.lastPriceFetch = now
	s.accept(ctx, telemetry.KindSpotPrice, value, now)
}

// fetchSolar polls the solar production source.
func (s *Scheduler) fetchSolar(ctx context.Context, now time.Time) {
	start := time.Now()
	value, err := s.opts.Solar.CurrentProduction(ctx)
	if err != nil {
		metrics.ObserveFetch("solar_production", metrics.ResultError, time.Since(start))
		s.logWarn("solar production fetch failed", "error", err)
		return
	}
	metrics.ObserveFetch("solar_production", metrics.ResultSuccess, time.Since(start))

	s.lastSolarFetch = now
	s.accept(ctx, telemetry.KindSolarProduction, value, now)
}

// HandlePowerReading accepts one grid power reading from the push
// feed. Wire it as the ingest callback.
//
// Parameters:
//   - value: Reading in watts
//   - observedAt: When the reading arrived
func (s *Scheduler) HandlePowerReading(value float64, observedAt time.Time) {
	metrics.IncFeedReading()
	s.accept(context.Background(), telemetry.KindGridPower, value, observedAt)
}

// accept records a new sample: store, local history, and write-through
// to the sink with the freshest value of every kind.
func (s *Scheduler) accept(ctx context.Context, kind telemetry.Kind, value float64, observedAt time.Time) {
	s.opts.Store.SetLatest(kind, value, observedAt)

	if s.opts.History != nil {
		if err := s.opts.History.Record(ctx, kind, value, observedAt); err != nil {
			s.logWarn("recording sample history failed", "kind", kind.String(), "error", err)
		}
	}

	if s.opts.Sink != nil {
		if s.opts.Sink.Write(s.opts.Store.Snapshot(), observedAt) {
			metrics.IncSinkWrite(metrics.ResultSuccess)
		} else {
			metrics.IncSinkWrite(metrics.ResultError)
		}
	}
}

func (s *Scheduler) logDebug(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, args...)
	}
}

func (s *Scheduler) logInfo(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, args...)
	}
}

func (s *Scheduler) logWarn(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, args...)
	}
}
