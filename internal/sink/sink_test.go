package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sotehus/sotehus-core/internal/infrastructure/config"
	"github.com/sotehus/sotehus-core/internal/telemetry"
)

// fakeWriteAPI records points and can be forced to fail.
type fakeWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
	err    error
}

func (f *fakeWriteAPI) WriteRecord(_ context.Context, _ ...string) error { return f.err }

func (f *fakeWriteAPI) WritePoint(_ context.Context, point ...*write.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, point...)
	return nil
}

func (f *fakeWriteAPI) EnableBatching() {}

func (f *fakeWriteAPI) Flush(_ context.Context) error { return nil }

func (f *fakeWriteAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

// fakeClock is a manually advanced clock for backoff testing.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func enabledConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://localhost:8086",
		Token:         "test-token",
		Org:           "sotehus",
		Bucket:        "telemetry",
		ReconnectBase: 5,
		ReconnectMax:  60,
	}
}

// newTestSink wires a sink to a fake write API and fake clock.
// connectErrs controls how many initial connection attempts fail.
func newTestSink(t *testing.T, connectErrs int) (*Sink, *fakeWriteAPI, *fakeClock, *int) {
	t.Helper()

	s, err := New(enabledConfig(), "home")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	fake := &fakeWriteAPI{}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	attempts := 0

	s.now = clock.now
	s.connect = func(cfg config.InfluxDBConfig, _ string) (influxdb2.Client, api.WriteAPIBlocking, error) {
		attempts++
		if attempts <= connectErrs {
			return nil, nil, ErrConnectionFailed
		}
		// Client construction performs no I/O; only Close is called on it.
		return influxdb2.NewClient(cfg.URL, "t"), fake, nil
	}

	return s, fake, clock, &attempts
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.InfluxDBConfig)
		wantErr error
	}{
		{"valid token", func(c *config.InfluxDBConfig) {}, nil},
		{
			"valid username password",
			func(c *config.InfluxDBConfig) {
				c.Token = ""
				c.Username = "admin"
				c.Password = "secret"
			},
			nil,
		},
		{
			"disabled",
			func(c *config.InfluxDBConfig) { c.Enabled = false },
			ErrDisabled,
		},
		{
			"no credentials",
			func(c *config.InfluxDBConfig) { c.Token = "" },
			ErrMissingCredentials,
		},
		{
			"username without password",
			func(c *config.InfluxDBConfig) {
				c.Token = ""
				c.Username = "admin"
			},
			ErrMissingCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledConfig()
			tt.mutate(&cfg)

			s, err := New(cfg, "home")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if s.IsConnected() {
				t.Error("new sink should start disconnected")
			}
		})
	}
}

func TestSink_WriteSuccess(t *testing.T) {
	s, fake, _, _ := newTestSink(t, 0)
	defer s.Close() //nolint:errcheck

	now := time.Now()
	snap := telemetry.Snapshot{
		telemetry.KindGridPower: {Value: 1250.5, ObservedAt: now},
		telemetry.KindSpotPrice: {Value: 0.92, ObservedAt: now},
	}

	if !s.Write(snap, now) {
		t.Fatal("Write returned false")
	}
	if !s.IsConnected() {
		t.Error("sink should be connected after successful write")
	}
	if fake.count() != 1 {
		t.Fatalf("points written = %d, want 1", fake.count())
	}

	p := fake.points[0]
	if p.Name() != "power_monitoring" {
		t.Errorf("measurement = %q, want power_monitoring", p.Name())
	}

	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if got := fields["grid_power"]; got != 1250.5 {
		t.Errorf("grid_power = %v, want 1250.5", got)
	}
	if got := fields["spot_price"]; got != 0.92 {
		t.Errorf("spot_price = %v, want 0.92", got)
	}
	if _, ok := fields["solar_production"]; ok {
		t.Error("absent kind should not produce a field")
	}
}

func TestSink_WriteEmptySnapshotSkipped(t *testing.T) {
	s, _, _, attempts := newTestSink(t, 0)
	defer s.Close() //nolint:errcheck

	if s.Write(telemetry.Snapshot{}, time.Now()) {
		t.Error("empty snapshot should not be written")
	}
	if *attempts != 0 {
		t.Error("empty snapshot should not trigger a connection attempt")
	}
}

func TestSink_BackoffSchedule(t *testing.T) {
	s, _, clock, attempts := newTestSink(t, 100)
	defer s.Close() //nolint:errcheck

	// First attempt fails and doubles the delay to 10s
	if s.EnsureConnection() {
		t.Fatal("expected connection failure")
	}
	if *attempts != 1 {
		t.Fatalf("attempts = %d, want 1", *attempts)
	}
	if s.backoff != 10*time.Second {
		t.Fatalf("backoff = %v, want 10s after first failure", s.backoff)
	}

	// Inside the doubled window: no new attempt
	clock.advance(9 * time.Second)
	s.EnsureConnection()
	if *attempts != 1 {
		t.Errorf("attempt made inside backoff window (attempts=%d)", *attempts)
	}

	// Window elapsed: second attempt, delay grows to 20s
	clock.advance(1 * time.Second)
	s.EnsureConnection()
	if *attempts != 2 {
		t.Errorf("attempts = %d, want 2", *attempts)
	}

	clock.advance(19 * time.Second)
	s.EnsureConnection()
	if *attempts != 2 {
		t.Errorf("attempt made inside grown window (attempts=%d)", *attempts)
	}

	clock.advance(1 * time.Second)
	s.EnsureConnection()
	if *attempts != 3 {
		t.Errorf("attempts = %d, want 3", *attempts)
	}
}

func TestSink_WriteFailureRetriesImmediately(t *testing.T) {
	s, fake, clock, attempts := newTestSink(t, 0)
	defer s.Close() //nolint:errcheck

	snap := telemetry.Snapshot{telemetry.KindGridPower: {Value: 100}}
	if !s.Write(snap, clock.now()) {
		t.Fatal("first write should succeed")
	}

	// A long healthy stretch, then one transient write failure.
	clock.advance(10 * time.Minute)
	fake.err = errors.New("write: connection reset")
	if s.Write(snap, clock.now()) {
		t.Fatal("write should fail")
	}
	if s.IsConnected() {
		t.Error("failed write should disconnect the sink")
	}
	if s.backoff != 5*time.Second {
		t.Errorf("backoff = %v, want unchanged 5s after a write failure", s.backoff)
	}

	// The attempt gate tracks connection attempts, not writes, so the
	// next call reconnects without waiting out a backoff window.
	fake.err = nil
	before := *attempts
	clock.advance(1 * time.Second)
	if !s.Write(snap, clock.now()) {
		t.Fatal("write should reconnect and succeed")
	}
	if *attempts != before+1 {
		t.Errorf("attempts = %d, want %d", *attempts, before+1)
	}
}

func TestSink_BackoffCapsAtMax(t *testing.T) {
	s, _, clock, _ := newTestSink(t, 100)
	defer s.Close() //nolint:errcheck

	// 5 -> 10 -> 20 -> 40 -> 60 -> 60
	for i := 0; i < 6; i++ {
		s.EnsureConnection()
		clock.advance(60 * time.Second)
	}

	if s.backoff != 60*time.Second {
		t.Errorf("backoff = %v, want 60s cap", s.backoff)
	}
}

func TestSink_BackoffNotResetOnSuccess(t *testing.T) {
	// Two failed attempts grow the delay to 20s, then connection
	// succeeds. The grown delay sticks.
	s, fake, clock, attempts := newTestSink(t, 2)
	defer s.Close() //nolint:errcheck

	s.EnsureConnection()
	clock.advance(10 * time.Second)
	s.EnsureConnection()
	clock.advance(20 * time.Second)
	if !s.EnsureConnection() {
		t.Fatal("third attempt should succeed")
	}
	if s.backoff != 20*time.Second {
		t.Fatalf("backoff = %v, want sticky 20s after success", s.backoff)
	}

	// A write failure right after connecting disconnects the sink; the
	// grown 20s delay still gates the next attempt (the last attempt
	// was only just made).
	fake.err = errors.New("write: connection reset")
	snap := telemetry.Snapshot{telemetry.KindGridPower: {Value: 100}}
	if s.Write(snap, clock.now()) {
		t.Fatal("write should fail")
	}
	if s.IsConnected() {
		t.Error("failed write should disconnect the sink")
	}

	fake.err = nil
	before := *attempts
	clock.advance(19 * time.Second)
	s.EnsureConnection()
	if *attempts != before {
		t.Error("reconnect attempted before grown backoff elapsed")
	}
	clock.advance(1 * time.Second)
	if !s.EnsureConnection() {
		t.Error("reconnect should succeed after backoff elapsed")
	}
}

func TestSink_WriteWhileDisconnectedDropped(t *testing.T) {
	s, fake, _, _ := newTestSink(t, 100)
	defer s.Close() //nolint:errcheck

	s.EnsureConnection()

	snap := telemetry.Snapshot{telemetry.KindGridPower: {Value: 100}}
	if s.Write(snap, time.Now()) {
		t.Error("write while disconnected should be dropped")
	}
	if fake.count() != 0 {
		t.Errorf("points written = %d, want 0", fake.count())
	}
}

func TestSink_CloseIdempotent(t *testing.T) {
	s, _, _, attempts := newTestSink(t, 0)

	s.EnsureConnection()

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	before := *attempts
	snap := telemetry.Snapshot{telemetry.KindGridPower: {Value: 100}}
	if s.Write(snap, time.Now()) {
		t.Error("write after Close should be dropped")
	}
	if *attempts != before {
		t.Error("Close-d sink should not attempt reconnection")
	}
}
