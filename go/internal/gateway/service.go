package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/game/phasetimer"
	"github.com/mcdev12/wordparty/go/internal/game/tally"
	"github.com/mcdev12/wordparty/go/internal/models"
	"github.com/mcdev12/wordparty/go/internal/room"
)

// Config holds configuration for the room gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// AutoWatch starts a session for rooms a client asks for that are not
	// watched yet.
	AutoWatch bool
	// MaxWatchedRooms caps how many sessions AutoWatch may hold at once.
	// Zero means no room is started on request.
	MaxWatchedRooms int
	Clock           clockwork.Clock
}

// DefaultConfig returns default configuration for the room gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		AutoWatch:        true,
		MaxWatchedRooms:  16,
		Clock:            clockwork.NewRealClock(),
	}
}

// ResultsPayload is the data of a results event.
type ResultsPayload struct {
	Round int `json:"round"`
	tally.Result
}

// Service fans room views out to display clients over WebSocket and serves
// the JSON state endpoints.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	actionHandler     *ActionHandler
	rooms             *room.Manager
	config            Config

	// ctx is the service lifetime, set by Start. Sessions started from
	// requests run under it.
	ctxMu sync.Mutex
	ctx   context.Context

	watchMu    sync.Mutex
	watchGen   map[string]int
	forwarders sync.WaitGroup
}

// NewService creates a new room gateway service
func NewService(config Config, rooms *room.Manager, leaderboard LeaderboardReader) *Service {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	cm := NewConnectionManager(config.ConnectionConfig)
	s := &Service{
		connectionManager: cm,
		rooms:             rooms,
		config:            config,
		ctx:               context.Background(),
		watchGen:          make(map[string]int),
	}
	s.wsHandler = NewWebSocketHandler(cm, s)
	s.stateHandler = NewStateHandler(rooms, leaderboard, config.Clock)
	s.actionHandler = NewActionHandler(rooms)
	cm.OnSync(s.syncConnection)
	return s
}

// Start runs the connection manager until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	s.ctxMu.Lock()
	s.ctx = ctx
	s.ctxMu.Unlock()

	s.connectionManager.Start(ctx)

	s.rooms.Close()
	s.forwarders.Wait()
	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	s.actionHandler.RegisterRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// Stats returns statistics about the gateway service
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// WatchRoom starts (or restarts) the session for roomID and forwards its
// views to connected displays.
func (s *Service) WatchRoom(ctx context.Context, roomID string) *room.Session {
	s.watchMu.Lock()
	s.watchGen[roomID]++
	gen := s.watchGen[roomID]
	s.watchMu.Unlock()

	session := s.rooms.Start(ctx, roomID)
	views, unsubscribe := session.Subscribe()

	s.forwarders.Add(1)
	go func() {
		defer s.forwarders.Done()
		defer unsubscribe()
		s.forward(roomID, gen, session, views)
	}()
	return session
}

// ensureWatched starts a session for roomID when AutoWatch is on and the
// watched room limit allows it. It reports whether the room has a session
// afterwards.
func (s *Service) ensureWatched(roomID string) bool {
	if _, err := s.rooms.Get(roomID); err == nil {
		return true
	}
	if !s.config.AutoWatch {
		return false
	}
	if len(s.rooms.Rooms()) >= s.config.MaxWatchedRooms {
		log.Warn().Str("room_id", roomID).Int("max_watched_rooms", s.config.MaxWatchedRooms).Msg("refusing to watch room, limit reached")
		return false
	}

	s.ctxMu.Lock()
	ctx := s.ctx
	s.ctxMu.Unlock()

	s.WatchRoom(ctx, roomID)
	return true
}

func (s *Service) forward(roomID string, gen int, session *room.Session, views <-chan phasetimer.View) {
	var resultsToken string
	for view := range views {
		s.broadcast(roomID, EventTypeView, view)

		if view.Phase == models.PhaseResults && view.PhaseToken != resultsToken {
			if res, ok := session.Results(); ok {
				resultsToken = view.PhaseToken
				s.broadcast(roomID, EventTypeResults, ResultsPayload{Round: view.Round, Result: res})
			}
		}
	}

	s.watchMu.Lock()
	replaced := s.watchGen[roomID] != gen
	if !replaced {
		delete(s.watchGen, roomID)
	}
	s.watchMu.Unlock()
	if !replaced {
		s.broadcast(roomID, EventTypeRoomClosed, map[string]string{"room_id": roomID})
	}
}

func (s *Service) broadcast(roomID string, eventType EventType, payload any) {
	event, err := NewRoomEvent(roomID, eventType, payload, s.config.Clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build room event")
		return
	}
	s.connectionManager.BroadcastToRoom(roomID, event)
}

// syncConnection sends a client the current view of its room.
func (s *Service) syncConnection(c *Connection) {
	session, err := s.rooms.Get(c.RoomID)
	if err != nil {
		s.sendTo(c, EventTypeError, map[string]string{"error": "room is not being watched"})
		return
	}
	s.sendTo(c, EventTypeView, session.View())
}

func (s *Service) sendTo(c *Connection, eventType EventType, payload any) {
	event, err := NewRoomEvent(c.RoomID, eventType, payload, s.config.Clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", c.RoomID).Msg("failed to build room event")
		return
	}
	s.connectionManager.SendToConnection(c, event)
}
