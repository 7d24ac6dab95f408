package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sotehus/sotehus-core/internal/infrastructure/config"
	"github.com/sotehus/sotehus-core/internal/metrics"
	"github.com/sotehus/sotehus-core/internal/telemetry"
)

// Sink constants.
const (
	// measurementName is the InfluxDB measurement all snapshots land in.
	measurementName = "power_monitoring"

	// defaultConnectTimeout bounds the ping during connection attempts.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single blocking write.
	defaultWriteTimeout = 10 * time.Second
)

// Logger is the minimal logging interface the sink needs.
// *logging.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// connectFunc establishes a client and blocking write API.
// Replaced in tests to avoid a live server.
type connectFunc func(cfg config.InfluxDBConfig, token string) (influxdb2.Client, api.WriteAPIBlocking, error)

// Sink writes telemetry snapshots to InfluxDB with lazy reconnection.
//
// The sink starts disconnected. Each Write first ensures a connection:
// if disconnected and the backoff delay has elapsed since the last
// connection attempt, one attempt is made; otherwise the write is
// dropped. A failed write only marks the sink disconnected; the
// backoff gate tracks connection attempts, not writes, so a write
// failure after a long healthy stretch reconnects on the next call.
//
// Thread Safety: all methods are safe for concurrent use. State
// transitions happen under a single mutex.
type Sink struct {
	cfg    config.InfluxDBConfig
	siteID string
	token  string

	mu          sync.Mutex
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	connected   bool
	backoff     time.Duration
	lastAttempt time.Time
	closed      bool

	connect connectFunc
	now     func() time.Time

	loggerMu sync.RWMutex
	logger   Logger
}

// New creates a sink for the given configuration.
//
// Credentials are validated eagerly: either a token, or a username and
// password pair (translated to InfluxDB 1.8-compatible token form),
// must be present. No connection is attempted here; the first Write
// connects on demand.
//
// Parameters:
//   - cfg: InfluxDB configuration from config.yaml
//   - siteID: Site tag applied to every point (empty to omit)
//
// Returns:
//   - *Sink: Sink ready for use, initially disconnected
//   - error: ErrDisabled or ErrMissingCredentials
func New(cfg config.InfluxDBConfig, siteID string) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	token := cfg.Token
	if token == "" {
		if cfg.Username == "" || cfg.Password == "" {
			return nil, ErrMissingCredentials
		}
		// v1.8 compatibility: username:password acts as the token
		token = fmt.Sprintf("%s:%s", cfg.Username, cfg.Password)
	}

	base := time.Duration(cfg.ReconnectBase) * time.Second
	if base <= 0 {
		base = 5 * time.Second
	}

	return &Sink{
		cfg:     cfg,
		siteID:  siteID,
		token:   token,
		backoff: base,
		connect: defaultConnect,
		now:     time.Now,
	}, nil
}

// defaultConnect creates a real client and verifies it with a ping.
func defaultConnect(cfg config.InfluxDBConfig, token string) (influxdb2.Client, api.WriteAPIBlocking, error) {
	client := influxdb2.NewClient(cfg.URL, token)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	return client, client.WriteAPIBlocking(cfg.Org, cfg.Bucket), nil
}

// EnsureConnection attempts to bring the sink into the connected state.
//
// Already connected: returns true immediately. Disconnected and less
// than the backoff delay since the last connection attempt: returns
// false without attempting. Otherwise one connection attempt is made;
// on failure the backoff doubles up to the configured cap, and that
// doubled delay gates the next attempt.
//
// Returns:
//   - bool: true if the sink is connected after the call
func (s *Sink) EnsureConnection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureConnectionLocked()
}

// ensureConnectionLocked implements EnsureConnection with s.mu held.
func (s *Sink) ensureConnectionLocked() bool {
	if s.closed {
		return false
	}
	if s.connected {
		return true
	}

	now := s.now()
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < s.backoff {
		return false
	}
	s.lastAttempt = now

	metrics.IncSinkReconnect()
	client, writeAPI, err := s.connect(s.cfg, s.token)
	if err != nil {
		s.growBackoffLocked()
		s.logWarn("influxdb connection attempt failed",
			"error", err, "next_retry_in", s.backoff.String())
		return false
	}

	s.client = client
	s.writeAPI = writeAPI
	s.connected = true
	return true
}

// growBackoffLocked doubles the backoff up to the configured cap.
// Only a failed connection attempt grows the delay; a failed write
// does not. Caller holds s.mu.
func (s *Sink) growBackoffLocked() {
	maxBackoff := time.Duration(s.cfg.ReconnectMax) * time.Second
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}
	s.backoff *= 2
	if s.backoff > maxBackoff {
		s.backoff = maxBackoff
	}
}

// Write records one telemetry snapshot as a single point.
//
// Each kind present in the snapshot becomes a field on the
// power_monitoring measurement (grid_power, spot_price,
// solar_production). Empty snapshots are skipped. A failed write
// disconnects the sink; a later call reconnects once the attempt
// gate allows, which after a healthy stretch is immediately.
//
// Parameters:
//   - snap: Latest sample per kind; absent kinds are omitted
//   - ts: Point timestamp
//
// Returns:
//   - bool: true if the point was written
func (s *Sink) Write(snap telemetry.Snapshot, ts time.Time) bool {
	if len(snap) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ensureConnectionLocked() {
		return false
	}

	fields := make(map[string]interface{}, len(snap))
	for kind, sample := range snap {
		fields[kind.String()] = sample.Value
	}

	tags := map[string]string{}
	if s.siteID != "" {
		tags["site"] = s.siteID
	}

	point := write.NewPoint(measurementName, tags, fields, ts)

	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		s.disconnectLocked()
		s.logError("influxdb write failed", "error", err)
		return false
	}

	return true
}

// disconnectLocked tears down the client. Caller holds s.mu.
func (s *Sink) disconnectLocked() {
	if s.client != nil {
		s.client.Close()
		s.client = nil
		s.writeAPI = nil
	}
	s.connected = false
}

// IsConnected returns the current connection state.
func (s *Sink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close shuts the sink down. Subsequent writes are dropped and no
// further reconnect attempts are made. Safe to call multiple times.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.disconnectLocked()
	return nil
}

// SetLogger sets the logger for connection and write failures.
func (s *Sink) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	defer s.loggerMu.Unlock()
	s.logger = logger
}

func (s *Sink) logWarn(msg string, args ...any) {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Sink) logError(msg string, args ...any) {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
