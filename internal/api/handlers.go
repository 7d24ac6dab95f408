package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sotehus/sotehus-core/internal/telemetry"
)

// sampleView is the JSON shape of one telemetry sample.
type sampleView struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
	AgeSeconds float64   `json:"age_seconds"`
}

// telemetryView is the JSON shape of the full telemetry snapshot.
type telemetryView struct {
	Observers int                   `json:"observers"`
	Samples   map[string]sampleView `json:"samples"`
}

// newSampleView converts a sample for JSON output.
func newSampleView(s telemetry.Sample, now time.Time) sampleView {
	return sampleView{
		Value:      s.Value,
		ObservedAt: s.ObservedAt,
		AgeSeconds: s.Age(now).Seconds(),
	}
}

// handleHealth returns the server health status and component states.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	components := map[string]string{}
	if s.feed != nil {
		components["mqtt"] = connState(s.feed.IsConnected())
	}
	if s.sink != nil {
		components["influxdb"] = connState(s.sink.IsConnected())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"components": components,
	})
}

func connState(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}

// handleTelemetry returns the latest sample of every kind plus the
// current observer count.
func (s *Server) handleTelemetry(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	snap := s.store.Snapshot()

	samples := make(map[string]sampleView, len(snap))
	for kind, sample := range snap {
		samples[kind.String()] = newSampleView(sample, now)
	}

	writeJSON(w, http.StatusOK, telemetryView{
		Observers: s.store.Observers(),
		Samples:   samples,
	})
}

// handleTelemetryKind returns the latest sample for one kind.
func (s *Server) handleTelemetryKind(w http.ResponseWriter, r *http.Request) {
	kind := telemetry.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeBadRequest(w, "unknown telemetry kind: "+kind.String())
		return
	}

	sample, ok := s.store.Latest(kind)
	if !ok {
		writeNotFound(w, "no sample recorded for "+kind.String())
		return
	}

	writeJSON(w, http.StatusOK, newSampleView(sample, time.Now()))
}

// handleHistory returns recent persisted samples for one kind.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "sample history is not enabled")
		return
	}

	kind := telemetry.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeBadRequest(w, "unknown telemetry kind: "+kind.String())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.Recent(r.Context(), kind, limit)
	if err != nil {
		s.logger.Error("history query failed", "kind", kind.String(), "error", err)
		writeInternalError(w, "history query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kind":    kind.String(),
		"entries": entries,
	})
}
