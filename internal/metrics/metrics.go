package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "sotehus_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	sourceFetchTotal   *prometheus.CounterVec
	sourceFetchLatency *prometheus.HistogramVec

	sinkWritesTotal     *prometheus.CounterVec
	sinkReconnectsTotal prometheus.Counter

	feedReadingsTotal prometheus.Counter
	feedDropsTotal    prometheus.Counter

	observersGauge      prometheus.Gauge
	solarIntervalMinute prometheus.Gauge
)

// Init registers all Sotehus metrics with the default registry.
// Safe to call multiple times; registration happens once.
func Init() {
	registerOnce.Do(func() {
		sourceFetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "source_fetch_total",
				Help: "Total polled source fetches by source and result",
			},
			[]string{"source", "result"},
		)
		sourceFetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "source_fetch_latency_seconds",
				Help:    "Polled source fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		)

		sinkWritesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sink_writes_total",
				Help: "Total sink write attempts by result",
			},
			[]string{"result"},
		)
		sinkReconnectsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "sink_reconnects_total",
				Help: "Total sink reconnection attempts",
			},
		)

		feedReadingsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_readings_total",
				Help: "Total accepted grid power readings",
			},
		)
		feedDropsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_drops_total",
				Help: "Total dropped unparseable grid power payloads",
			},
		)

		observersGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "observers",
				Help: "Current number of live telemetry observers",
			},
		)
		solarIntervalMinute = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "solar_poll_interval_minutes",
				Help: "Planned solar poll interval in minutes",
			},
		)

		prometheus.MustRegister(
			sourceFetchTotal,
			sourceFetchLatency,
			sinkWritesTotal,
			sinkReconnectsTotal,
			feedReadingsTotal,
			feedDropsTotal,
			observersGauge,
			solarIntervalMinute,
		)
	})
}

// ObserveFetch records one polled source fetch.
func ObserveFetch(source, result string, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if sourceFetchTotal != nil {
		sourceFetchTotal.WithLabelValues(source, result).Inc()
	}
	if sourceFetchLatency != nil {
		sourceFetchLatency.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// IncSinkWrite increments the sink write counter.
func IncSinkWrite(result string) {
	if result == "" {
		result = resultSuccess
	}
	if sinkWritesTotal != nil {
		sinkWritesTotal.WithLabelValues(result).Inc()
	}
}

// IncSinkReconnect increments the sink reconnect counter.
func IncSinkReconnect() {
	if sinkReconnectsTotal != nil {
		sinkReconnectsTotal.Inc()
	}
}

// IncFeedReading increments the accepted reading counter.
func IncFeedReading() {
	if feedReadingsTotal != nil {
		feedReadingsTotal.Inc()
	}
}

// IncFeedDrop increments the dropped payload counter.
func IncFeedDrop() {
	if feedDropsTotal != nil {
		feedDropsTotal.Inc()
	}
}

// SetObservers records the current observer count.
func SetObservers(count int) {
	if observersGauge != nil {
		observersGauge.Set(float64(count))
	}
}

// SetSolarInterval records the planned solar poll interval.
func SetSolarInterval(interval time.Duration) {
	if solarIntervalMinute != nil {
		solarIntervalMinute.Set(interval.Minutes())
	}
}

// Exported result constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
