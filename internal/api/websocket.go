package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sotehus/sotehus-core/internal/metrics"
)

// WebSocket defaults, applied when the config leaves a value unset.
const (
	defaultPushInterval   = 3 * time.Second
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 60 * time.Second
	defaultMaxMessageSize = 1024
)

// wsMessage is the frame pushed to connected sessions.
type wsMessage struct {
	Type      string                `json:"type"`
	Timestamp string                `json:"timestamp"`
	Payload   map[string]sampleView `json:"payload"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// handleWebSocket upgrades the connection and streams telemetry
// snapshots until the client disconnects.
//
// Each session registers as one observer for its lifetime. The
// scheduler reads that count: external sources are only polled while
// at least one session is open.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sessionID := uuid.NewString()

	count := s.store.AddObserver()
	metrics.SetObservers(count)
	s.logger.Info("websocket session opened", "session_id", sessionID, "observers", count)

	defer func() {
		conn.Close() //nolint:errcheck // Best effort close
		remaining := s.store.RemoveObserver()
		metrics.SetObservers(remaining)
		s.logger.Info("websocket session closed", "session_id", sessionID, "observers", remaining)
	}()

	done := make(chan struct{})
	go s.pushLoop(conn, done)

	s.readLoop(conn, sessionID)
	close(done)
}

// readLoop consumes inbound frames to keep the connection alive and
// detect disconnects. Clients are not expected to send anything.
func (s *Server) readLoop(conn *websocket.Conn, sessionID string) {
	maxSize := s.wsCfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	conn.SetReadLimit(int64(maxSize))

	deadline := s.pingInterval() + s.pongTimeout()
	conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // Best-effort deadline
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "session_id", sessionID, "error", err)
			} else {
				s.logger.Debug("websocket closed", "session_id", sessionID)
			}
			return
		}
		// Any inbound frame resets the read deadline
		conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // Best-effort deadline reset
	}
}

// pushLoop writes a telemetry snapshot on every push interval and a
// protocol ping on every ping interval, until done closes or a write
// fails.
func (s *Server) pushLoop(conn *websocket.Conn, done <-chan struct{}) {
	pushTicker := time.NewTicker(s.pushInterval())
	pingTicker := time.NewTicker(s.pingInterval())
	defer func() {
		pushTicker.Stop()
		pingTicker.Stop()
	}()

	// First snapshot goes out immediately so the dashboard is not
	// empty for a full push interval.
	if err := s.writeSnapshot(conn); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-pushTicker.C:
			if err := s.writeSnapshot(conn); err != nil {
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.pongTimeout())) //nolint:errcheck // Best-effort deadline
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeSnapshot sends the current telemetry snapshot as one frame.
func (s *Server) writeSnapshot(conn *websocket.Conn) error {
	now := time.Now()
	snap := s.store.Snapshot()

	payload := make(map[string]sampleView, len(snap))
	for kind, sample := range snap {
		payload[kind.String()] = newSampleView(sample, now)
	}

	data, err := json.Marshal(wsMessage{
		Type:      "telemetry",
		Timestamp: now.UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(now.Add(s.pongTimeout())) //nolint:errcheck // Best-effort deadline
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) pushInterval() time.Duration {
	if s.wsCfg.PushInterval > 0 {
		return time.Duration(s.wsCfg.PushInterval) * time.Second
	}
	return defaultPushInterval
}

func (s *Server) pingInterval() time.Duration {
	if s.wsCfg.PingInterval > 0 {
		return time.Duration(s.wsCfg.PingInterval) * time.Second
	}
	return defaultPingInterval
}

func (s *Server) pongTimeout() time.Duration {
	if s.wsCfg.PongTimeout > 0 {
		return time.Duration(s.wsCfg.PongTimeout) * time.Second
	}
	return defaultPongTimeout
}
