package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/game/phasetimer"
	"github.com/mcdev12/wordparty/go/internal/leaderboard"
	"github.com/mcdev12/wordparty/go/internal/models"
	"github.com/mcdev12/wordparty/go/internal/room"
)

// RoomLookup finds the session of a watched room.
type RoomLookup interface {
	Get(roomID string) (*room.Session, error)
}

// LeaderboardReader serves season leaderboards.
type LeaderboardReader interface {
	Leaderboard(ctx context.Context, limit int) (leaderboard.Leaderboard, error)
}

// RoomStateResponse is the body of GET /api/rooms/{id}/state.
type RoomStateResponse struct {
	View        phasetimer.View    `json:"view"`
	Submissions models.Submissions `json:"submissions,omitempty"`
	Votes       models.Votes       `json:"votes"`
	ServerTime  time.Time          `json:"server_time"`
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	rooms       RoomLookup
	leaderboard LeaderboardReader
	clock       clockwork.Clock
}

// NewStateHandler creates a new state handler. leaderboard may be nil.
func NewStateHandler(rooms RoomLookup, leaderboard LeaderboardReader, clock clockwork.Clock) *StateHandler {
	return &StateHandler{
		rooms:       rooms,
		leaderboard: leaderboard,
		clock:       clock,
	}
}

// HandleGetRoomState handles GET /api/rooms/{id}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	resp := RoomStateResponse{
		View:       session.View(),
		ServerTime: h.clock.Now(),
	}
	if state, ok := session.State(); ok {
		resp.Submissions = state.Submissions
		resp.Votes = state.Votes
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetRoomResults handles GET /api/rooms/{id}/results
func (h *StateHandler) HandleGetRoomResults(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	res, ok := session.Results()
	if !ok {
		http.Error(w, "no votes cast yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ResultsPayload{Round: session.View().Round, Result: res})
}

// HandleGetLeaderboard handles GET /api/leaderboard?limit=N
func (h *StateHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if h.leaderboard == nil {
		http.Error(w, "leaderboard is not configured", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be a number", http.StatusBadRequest)
			return
		}
		limit = n
	}

	lb, err := h.leaderboard.Leaderboard(r.Context(), limit)
	if errors.Is(err, leaderboard.ErrNoSeason) {
		http.Error(w, "no active season", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to get leaderboard")
		http.Error(w, "Failed to get leaderboard", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/{id}/state", h.HandleGetRoomState)
	mux.HandleFunc("GET /api/rooms/{id}/results", h.HandleGetRoomResults)
	mux.HandleFunc("GET /api/leaderboard", h.HandleGetLeaderboard)
}

func (h *StateHandler) session(w http.ResponseWriter, r *http.Request) (*room.Session, bool) {
	roomID := r.PathValue("id")
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return nil, false
	}
	session, err := h.rooms.Get(roomID)
	if errors.Is(err, room.ErrNotFound) {
		http.Error(w, "room is not being watched", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to look up room")
		http.Error(w, "Failed to get room", http.StatusInternalServerError)
		return nil, false
	}
	return session, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
