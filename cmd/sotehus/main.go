// Sotehus Core - Household Energy Telemetry Aggregator
//
// This is the main entry point for the Sotehus Core application.
// Sotehus aggregates three household energy feeds:
//   - Grid power, pushed by the meter over MQTT
//   - Electricity spot price, polled from the day-ahead market feed
//   - Solar production, polled from the inverter cloud API
//
// Readings flow through one shared store, persist to InfluxDB, and are
// served to dashboards over HTTP and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sotehus/sotehus-core/internal/api"
	"github.com/sotehus/sotehus-core/internal/daylight"
	"github.com/sotehus/sotehus-core/internal/history"
	"github.com/sotehus/sotehus-core/internal/infrastructure/config"
	"github.com/sotehus/sotehus-core/internal/infrastructure/database"
	"github.com/sotehus/sotehus-core/internal/infrastructure/logging"
	"github.com/sotehus/sotehus-core/internal/infrastructure/mqtt"
	"github.com/sotehus/sotehus-core/internal/ingest"
	"github.com/sotehus/sotehus-core/internal/metrics"
	"github.com/sotehus/sotehus-core/internal/scheduler"
	"github.com/sotehus/sotehus-core/internal/sink"
	"github.com/sotehus/sotehus-core/internal/sources/solaredge"
	"github.com/sotehus/sotehus-core/internal/sources/spotprice"
	"github.com/sotehus/sotehus-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// historyRetention is how long local samples are kept before pruning.
const historyRetention = 7 * 24 * time.Hour

// historyPruneInterval is how often the prune pass runs.
const historyPruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Sotehus Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	metrics.Init()

	// The shared store is the single choke point: every producer writes
	// into it, every consumer reads from it.
	store := telemetry.NewStore()

	// Open database for local sample history
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	historyRepo, err := history.NewRepository(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("initialising sample history: %w", err)
	}
	go pruneLoop(ctx, historyRepo, log)

	// Sink is optional: the process aggregates and serves telemetry
	// even when InfluxDB is disabled or misconfigured.
	telemetrySink := buildSink(store, cfg, log)
	if telemetrySink != nil {
		defer func() {
			log.Info("closing telemetry sink")
			if closeErr := telemetrySink.Close(); closeErr != nil {
				log.Error("error closing sink", "error", closeErr)
			}
		}()
	}

	// Daylight planner for the configured site
	location, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		log.Warn("invalid site timezone, using UTC", "timezone", cfg.Site.Timezone, "error", err)
		location = time.UTC
	}
	planner := daylight.NewPlanner(
		cfg.Site.Location.Latitude,
		cfg.Site.Location.Longitude,
		location,
	)

	// Polled sources
	priceClient := spotprice.New(
		cfg.Sources.SpotPrice.BaseURL,
		cfg.Sources.SpotPrice.Region,
		time.Duration(cfg.Sources.SpotPrice.Timeout)*time.Second,
	)

	var solarClient *solaredge.Client
	if cfg.Sources.SolarEdge.Enabled {
		solarClient, err = solaredge.New(
			cfg.Sources.SolarEdge.BaseURL,
			cfg.Sources.SolarEdge.APIKey,
			cfg.Sources.SolarEdge.SiteID,
			time.Duration(cfg.Sources.SolarEdge.Timeout)*time.Second,
		)
		if err != nil {
			log.Warn("solar monitoring disabled", "error", err)
		}
	} else {
		log.Info("solar monitoring disabled in configuration")
	}

	// Scheduler: the sequential loop pacing the polled sources
	schedOpts := scheduler.Options{
		Store:               store,
		Planner:             planner,
		Price:               priceClient,
		History:             historyRepo,
		Logger:              log,
		SolarDailyBudget:    cfg.Sources.SolarEdge.MaxDailyCalls,
		SolarUsableFraction: cfg.Sources.SolarEdge.UsagePercent,
		Tick:                cfg.GetTickInterval(),
	}
	if solarClient != nil {
		schedOpts.Solar = solarClient
	}
	if telemetrySink != nil {
		schedOpts.Sink = telemetrySink
	}
	sched := scheduler.New(schedOpts)
	go func() {
		_ = sched.Run(ctx) //nolint:errcheck // Run always returns nil
	}()
	log.Info("scheduler started", "tick", cfg.GetTickInterval().String())

	// Push feed is optional too: a broken broker leaves price and
	// solar monitoring running.
	powerFeed := buildPowerFeed(store, cfg, sched, log)
	if powerFeed != nil {
		defer func() {
			log.Info("closing power feed")
			if closeErr := powerFeed.Close(); closeErr != nil {
				log.Error("error closing power feed", "error", closeErr)
			}
		}()
	}

	// HTTP/WebSocket API
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Store:   store,
		History: historyRepo,
		Sink:    telemetrySink,
		Feed:    powerFeed,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Sotehus Core stopped")
	return nil
}

// buildSink constructs the InfluxDB sink through the store's
// single-flight resource cache. Returns nil when the sink is disabled
// or misconfigured; the process degrades to in-memory telemetry.
func buildSink(store *telemetry.Store, cfg *config.Config, log *logging.Logger) *sink.Sink {
	resource := store.GetOrCreate("sink", func() (any, error) {
		s, err := sink.New(cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			log.Warn("telemetry sink unavailable", "error", err)
			return nil, err
		}
		s.SetLogger(log)
		return s, nil
	})
	if resource == nil {
		return nil
	}
	s, ok := resource.(*sink.Sink)
	if !ok {
		return nil
	}
	log.Info("telemetry sink ready",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return s
}

// buildPowerFeed connects the MQTT broker and subscribes the grid
// power feed, routing accepted readings into the scheduler. Returns
// nil when the broker is unreachable; polled sources keep running.
func buildPowerFeed(store *telemetry.Store, cfg *config.Config, sched *scheduler.Scheduler, log *logging.Logger) *ingest.Feed {
	resource := store.GetOrCreate("power_feed", func() (any, error) {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("power feed unavailable", "error", err)
			return nil, err
		}
		client.SetLogger(log)
		client.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		client.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		qos := byte(cfg.MQTT.QoS) // #nosec G115 -- validated to 0..2 in config
		feed := ingest.New(client, cfg.MQTT.Topic, qos)
		feed.SetLogger(log)
		feed.SetCallback(func(value float64, observedAt time.Time) {
			sched.HandlePowerReading(value, observedAt)
		})

		if err := feed.Start(); err != nil {
			_ = client.Close() //nolint:errcheck // Best effort cleanup on error path
			log.Warn("power feed subscription failed", "error", err)
			return nil, err
		}
		return feed, nil
	})
	if resource == nil {
		return nil
	}
	feed, ok := resource.(*ingest.Feed)
	if !ok {
		return nil
	}
	log.Info("power feed started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"topic", cfg.MQTT.Topic,
	)
	return feed
}

// pruneLoop trims the local sample history on a fixed interval.
func pruneLoop(ctx context.Context, repo *history.Repository, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.Prune(ctx, historyRetention)
			if err != nil {
				log.Warn("history prune failed", "error", err)
				continue
			}
			if deleted > 0 {
				log.Debug("history pruned", "deleted", deleted)
			}
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses SOTEHUS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SOTEHUS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
