package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/airwave/internal/models"
	"github.com/desertthunder/airwave/internal/shared"
	"github.com/desertthunder/airwave/internal/tasks"
)

// Response is the standard JSON envelope for every endpoint.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func sendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, statusCode int, message string) {
	sendJSON(w, statusCode, Response{Success: false, Error: message})
}

func sendSuccess(w http.ResponseWriter, data any) {
	sendJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// SyncHandler serves playlist sync and now-playing endpoints.
type SyncHandler struct {
	engine      *tasks.SyncEngine
	recentHours int
	logger      *log.Logger
}

// NewSyncHandler creates a SyncHandler over the given engine.
func NewSyncHandler(engine *tasks.SyncEngine, recentHours int, logger *log.Logger) *SyncHandler {
	if recentHours <= 0 {
		recentHours = 4
	}
	return &SyncHandler{engine: engine, recentHours: recentHours, logger: logger}
}

// Routes returns the method-qualified patterns this handler serves.
func (h *SyncHandler) Routes() []string {
	return []string{
		"GET /now-playing/{station}",
		"GET /status/{station}",
		"POST /status/{station}",
		"POST /sync/{station}",
	}
}

// ServeHTTP dispatches by method and path pattern.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	station := r.PathValue("station")
	if station == "" {
		sendError(w, http.StatusBadRequest, "station is required")
		return
	}

	switch {
	case r.Method == http.MethodGet && pathIs(r, "/now-playing/"):
		h.nowPlaying(w, r, station)
	case r.Method == http.MethodGet:
		h.streamStatus(w, r, station)
	case r.Method == http.MethodPost && pathIs(r, "/status/"):
		h.pushStatus(w, r, station)
	default:
		h.sync(w, r, station)
	}
}

// nowPlaying syncs and returns the current song. A soft staleness failure
// still returns the cached record, flagged as stale.
func (h *SyncHandler) nowPlaying(w http.ResponseWriter, r *http.Request, station string) {
	song, err := h.engine.SyncCurrentSong(r.Context(), station)
	if err != nil {
		if errors.Is(err, shared.ErrStaleData) && song != nil {
			sendSuccess(w, map[string]any{"song": song, "stale": true})
			return
		}
		sendError(w, http.StatusBadGateway, err.Error())
		return
	}

	if song == nil {
		sendError(w, http.StatusNotFound, "no spins recorded for station")
		return
	}

	sendSuccess(w, map[string]any{"song": song, "stale": false})
}

func (h *SyncHandler) streamStatus(w http.ResponseWriter, r *http.Request, station string) {
	status, err := h.engine.UpdateLiveStreamStatus(r.Context(), station)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendSuccess(w, status)
}

// pushStatus applies an externally reported live-stream update.
func (h *SyncHandler) pushStatus(w http.ResponseWriter, r *http.Request, station string) {
	var status models.StreamStatus
	if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
		sendError(w, http.StatusBadRequest, "invalid status payload")
		return
	}

	status.Station = station
	updated, err := h.engine.PushStatus(status)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sendSuccess(w, updated)
}

// sync runs a full sync and reports per-step outcomes; partial failure is a
// 200 with details, not an error status.
func (h *SyncHandler) sync(w http.ResponseWriter, r *http.Request, station string) {
	hours := h.recentHours
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hours = n
		}
	}

	result := h.engine.PerformFullSync(r.Context(), station, hours)

	steps := map[string]string{}
	for name, err := range map[string]error{
		"current_song": result.CurrentErr,
		"recent_songs": result.RecentErr,
		"stream":       result.StreamErr,
	} {
		if err != nil {
			steps[name] = err.Error()
		} else {
			steps[name] = "ok"
		}
	}

	sendSuccess(w, map[string]any{
		"result":    result,
		"steps":     steps,
		"succeeded": result.Succeeded(),
		"partial":   result.Partial(),
	})
}

// EnrichHandler serves track enrichment requests.
type EnrichHandler struct {
	dispatcher *tasks.Dispatcher
}

// NewEnrichHandler creates an EnrichHandler over the given dispatcher.
func NewEnrichHandler(dispatcher *tasks.Dispatcher) *EnrichHandler {
	return &EnrichHandler{dispatcher: dispatcher}
}

// Routes returns the method-qualified patterns this handler serves.
func (h *EnrichHandler) Routes() []string {
	return []string{"POST /enrich"}
}

// ServeHTTP enriches the posted track across all providers. Quota exhaustion
// and individual provider failures surface as a partial result, never as a
// total failure.
func (h *EnrichHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var track models.Track
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		sendError(w, http.StatusBadRequest, "invalid track payload")
		return
	}

	result, err := h.dispatcher.Enrich(r.Context(), track)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidInput) {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sendSuccess(w, result)
}

func pathIs(r *http.Request, prefix string) bool {
	return len(r.URL.Path) >= len(prefix) && r.URL.Path[:len(prefix)] == prefix
}
