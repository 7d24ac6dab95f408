package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Sotehus Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sources   SourcesConfig   `yaml:"sources"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains geographic coordinates for daylight calculations.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// MQTTConfig contains MQTT broker connection settings for the power feed.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Topic     string              `yaml:"topic"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for the telemetry sink.
//
// Either Token or Username+Password must be provided; the sink refuses
// construction without credentials.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	ReconnectBase int    `yaml:"reconnect_base"` // seconds, initial backoff delay
	ReconnectMax  int    `yaml:"reconnect_max"`  // seconds, backoff cap
}

// DatabaseConfig contains SQLite database settings for local sample history.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket session settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	PushInterval   int    `yaml:"push_interval"` // seconds between telemetry pushes
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SourcesConfig contains settings for the poll-based telemetry sources.
type SourcesConfig struct {
	SpotPrice SpotPriceConfig `yaml:"spot_price"`
	SolarEdge SolarEdgeConfig `yaml:"solaredge"`
}

// SpotPriceConfig contains settings for the elprisetjustnu.se price source.
type SpotPriceConfig struct {
	BaseURL string `yaml:"base_url"`
	Region  string `yaml:"region"`
	Timeout int    `yaml:"timeout"` // seconds
}

// SolarEdgeConfig contains settings for the SolarEdge monitoring API.
//
// MaxDailyCalls and UsagePercent bound how much of the API's daily call
// budget the solar poller may consume; the daylight planner spreads the
// allowed calls across the daylight window.
type SolarEdgeConfig struct {
	Enabled       bool    `yaml:"enabled"`
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	SiteID        string  `yaml:"site_id"`
	MaxDailyCalls int     `yaml:"max_daily_calls"`
	UsagePercent  float64 `yaml:"usage_percent"`
	Timeout       int     `yaml:"timeout"` // seconds
}

// SchedulerConfig contains poll scheduler settings.
type SchedulerConfig struct {
	TickSeconds int `yaml:"tick_seconds"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SOTEHUS_SECTION_KEY
// For example: SOTEHUS_MQTT_HOST, SOTEHUS_INFLUXDB_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Location defaults to Stockholm, matching the SE4 price region default.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "sotehus-001",
			Name:     "Sotehus",
			Timezone: "Europe/Stockholm",
			Location: LocationConfig{
				Latitude:  59.33,
				Longitude: 18.07,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sotehus-core",
			},
			Topic: "sotehus/power/grid",
			QoS:   1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       true,
			URL:           "http://localhost:8086",
			Org:           "sotehus",
			Bucket:        "sotehus_bucket",
			ReconnectBase: 5,
			ReconnectMax:  60,
		},
		Database: DatabaseConfig{
			Path:        "./data/sotehus.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
			PushInterval:   3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Sources: SourcesConfig{
			SpotPrice: SpotPriceConfig{
				BaseURL: "https://www.elprisetjustnu.se/api/v1/prices",
				Region:  "SE4",
				Timeout: 10,
			},
			SolarEdge: SolarEdgeConfig{
				Enabled:       false,
				BaseURL:       "https://monitoringapi.solaredge.com",
				MaxDailyCalls: 300,
				UsagePercent:  0.9,
				Timeout:       10,
			},
		},
		Scheduler: SchedulerConfig{
			TickSeconds: 60,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SOTEHUS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("SOTEHUS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SOTEHUS_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SOTEHUS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SOTEHUS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SOTEHUS_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}

	// InfluxDB
	if v := os.Getenv("SOTEHUS_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("SOTEHUS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("SOTEHUS_INFLUXDB_USERNAME"); v != "" {
		cfg.InfluxDB.Username = v
	}
	if v := os.Getenv("SOTEHUS_INFLUXDB_PASSWORD"); v != "" {
		cfg.InfluxDB.Password = v
	}

	// Database
	if v := os.Getenv("SOTEHUS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("SOTEHUS_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Sources
	if v := os.Getenv("SOTEHUS_SPOTPRICE_REGION"); v != "" {
		cfg.Sources.SpotPrice.Region = v
	}
	if v := os.Getenv("SOTEHUS_SOLAREDGE_API_KEY"); v != "" {
		cfg.Sources.SolarEdge.APIKey = v
	}
	if v := os.Getenv("SOTEHUS_SOLAREDGE_SITE_ID"); v != "" {
		cfg.Sources.SolarEdge.SiteID = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Location.Latitude < -90 || c.Site.Location.Latitude > 90 {
		errs = append(errs, "site.location.latitude must be between -90 and 90")
	}
	if c.Site.Location.Longitude < -180 || c.Site.Location.Longitude > 180 {
		errs = append(errs, "site.location.longitude must be between -180 and 180")
	}

	if c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Sources.SpotPrice.Region == "" {
		errs = append(errs, "sources.spot_price.region is required")
	}
	if c.Sources.SolarEdge.UsagePercent <= 0 || c.Sources.SolarEdge.UsagePercent > 1 {
		errs = append(errs, "sources.solaredge.usage_percent must be in (0, 1]")
	}
	if c.Sources.SolarEdge.MaxDailyCalls < 1 {
		errs = append(errs, "sources.solaredge.max_daily_calls must be positive")
	}

	if c.Scheduler.TickSeconds < 1 {
		errs = append(errs, "scheduler.tick_seconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// GetTickInterval returns the scheduler tick as a Duration.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}
