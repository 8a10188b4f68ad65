package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// roomWatcher is what the WebSocket handler needs to make sure a room is
// followed before a display attaches to it.
type roomWatcher interface {
	ensureWatched(roomID string) bool
}

// WebSocketHandler handles WebSocket upgrade requests for room displays
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	watcher           roomWatcher
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, watcher roomWatcher) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		watcher:           watcher,
	}
}

// HandleRoomConnection handles GET /ws/room?room_id=...
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	if !h.watcher.ensureWatched(roomID) {
		http.Error(w, "room is not being watched", http.StatusNotFound)
		return
	}

	// Upgrade writes its own error response on failure
	if err := h.connectionManager.UpgradeConnection(w, r, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/room", h.HandleRoomConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
