package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sotehus/sotehus-core/internal/infrastructure/config"
	"github.com/sotehus/sotehus-core/internal/infrastructure/logging"
	"github.com/sotehus/sotehus-core/internal/telemetry"
)

// testServer creates a Server backed by a fresh telemetry store.
func testServer(t *testing.T) (*Server, *telemetry.Store) {
	t.Helper()

	store := telemetry.NewStore()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			PushInterval:   1,
		},
		Logger:  log,
		Store:   store,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, store
}

func TestNew_RequiresDependencies(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	if _, err := New(Deps{Store: telemetry.NewStore()}); err == nil {
		t.Error("expected error without logger")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("expected error without store")
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestHandleTelemetry(t *testing.T) {
	srv, store := testServer(t)
	now := time.Now()

	store.SetLatest(telemetry.KindGridPower, 1250.5, now)
	store.SetLatest(telemetry.KindSpotPrice, 0.92, now)
	store.AddObserver()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body telemetryView
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Observers != 1 {
		t.Errorf("observers = %d, want 1", body.Observers)
	}
	if len(body.Samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(body.Samples))
	}
	if body.Samples["grid_power"].Value != 1250.5 {
		t.Errorf("grid_power = %v, want 1250.5", body.Samples["grid_power"].Value)
	}
}

func TestHandleTelemetryKind(t *testing.T) {
	srv, store := testServer(t)
	store.SetLatest(telemetry.KindSolarProduction, 3400, time.Now())
	router := srv.buildRouter()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"known kind with sample", "/api/v1/telemetry/solar_production", http.StatusOK},
		{"known kind without sample", "/api/v1/telemetry/grid_power", http.StatusNotFound},
		{"unknown kind", "/api/v1/telemetry/voltage", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleHistoryDisabled(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history/grid_power", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when history is disabled", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	// Generated when absent
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID")
	}

	// Echoed when provided
	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q, want client-supplied", got)
	}
}

func TestWebSocket_ObserverLifecycle(t *testing.T) {
	srv, store := testServer(t)

	httpSrv := httptest.NewServer(srv.buildRouter())
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}

	// Session open registers one observer
	waitFor(t, func() bool { return store.Observers() == 1 })

	// The first snapshot frame arrives immediately
	store.SetLatest(telemetry.KindGridPower, 800, time.Now())
	conn.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	if msg.Type != "telemetry" {
		t.Errorf("frame type = %q, want telemetry", msg.Type)
	}

	// Session close deregisters the observer
	conn.Close() //nolint:errcheck
	waitFor(t, func() bool { return store.Observers() == 0 })
}

func TestWebSocket_PushesSnapshots(t *testing.T) {
	srv, store := testServer(t)
	store.SetLatest(telemetry.KindSpotPrice, 1.05, time.Now())

	httpSrv := httptest.NewServer(srv.buildRouter())
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close() //nolint:errcheck

	// Read two frames: the immediate one and one pushed on the interval
	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading frame %d: %v", i, err)
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decoding frame %d: %v", i, err)
		}
		if msg.Payload["spot_price"].Value != 1.05 {
			t.Errorf("frame %d spot_price = %v, want 1.05", i, msg.Payload["spot_price"].Value)
		}
	}
}

// waitFor polls the condition until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
