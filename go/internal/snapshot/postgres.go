package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/wordparty/go/internal/models"
	"github.com/mcdev12/wordparty/go/internal/sqlutil"
)

// ErrNoState is returned when a room has no stored game state yet.
var ErrNoState = errors.New("no game state for room")

type PostgresConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on, payload is the room id
	FallbackInterval time.Duration // How often to re-read subscribed rooms
	PingInterval     time.Duration
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		NotifyChannel:    "game_state_changed",
		FallbackInterval: 5 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// StateLoader reads the stored game state of a room.
type StateLoader interface {
	LoadState(ctx context.Context, roomID string) (models.GameState, error)
}

const loadStateQuery = `SELECT state, updated_at FROM game_states WHERE room_id = $1`

// StateQueries loads game states from the game_states table.
type StateQueries struct {
	db *sql.DB
}

func NewStateQueries(db *sql.DB) *StateQueries {
	return &StateQueries{db: db}
}

// LoadState returns ErrNoState when the row does not exist.
func (q *StateQueries) LoadState(ctx context.Context, roomID string) (models.GameState, error) {
	var (
		raw       pqtype.NullRawMessage
		updatedAt sql.NullTime
	)
	err := q.db.QueryRowContext(ctx, loadStateQuery, roomID).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GameState{}, ErrNoState
	}
	if err != nil {
		return models.GameState{}, fmt.Errorf("query game state: %w", err)
	}

	doc := sqlutil.FromNullRawMessage(raw)
	if doc == nil {
		return models.GameState{}, ErrNoState
	}
	var state models.GameState
	if err := json.Unmarshal(doc, &state); err != nil {
		return models.GameState{}, fmt.Errorf("decode game state: %w", err)
	}
	if state.UpdatedAt == 0 {
		state.UpdatedAt = sqlutil.ToEpochMillis(updatedAt)
	}
	return state, nil
}

type pgRoom struct {
	subs        map[chan models.GameState]struct{}
	lastUpdated int64
	loaded      bool
}

// PostgresSource streams snapshots by listening for change notifications and
// re-reading the room row. A fallback poll covers missed notifications.
type PostgresSource struct {
	loader   StateLoader
	listener *pq.Listener
	notify   <-chan *pq.Notification
	cfg      PostgresConfig
	clock    clockwork.Clock

	mu    sync.Mutex
	rooms map[string]*pgRoom
}

func NewPostgresSource(db *sql.DB, cfg PostgresConfig) (*PostgresSource, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	s := newPostgresSource(NewStateQueries(db), l.Notify, cfg, clockwork.NewRealClock())
	s.listener = l
	return s, nil
}

func newPostgresSource(loader StateLoader, notify <-chan *pq.Notification, cfg PostgresConfig, clock clockwork.Clock) *PostgresSource {
	defaults := DefaultPostgresConfig()
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = defaults.FallbackInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	return &PostgresSource{
		loader: loader,
		notify: notify,
		cfg:    cfg,
		clock:  clock,
		rooms:  make(map[string]*pgRoom),
	}
}

// Subscribe implements Stream. The current row is delivered first when it
// exists.
func (s *PostgresSource) Subscribe(ctx context.Context, roomID string) (<-chan models.GameState, error) {
	ch := make(chan models.GameState, subscriberBuffer)

	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		room = &pgRoom{subs: make(map[chan models.GameState]struct{})}
		s.rooms[roomID] = room
	}
	room.subs[ch] = struct{}{}
	s.mu.Unlock()

	state, err := s.loader.LoadState(ctx, roomID)
	switch {
	case err == nil:
		s.mu.Lock()
		if !room.loaded {
			room.loaded = true
			room.lastUpdated = state.UpdatedAt
		}
		if _, ok := room.subs[ch]; ok {
			offer(ch, state)
		}
		s.mu.Unlock()
	case errors.Is(err, ErrNoState):
		log.Debug().Str("room_id", roomID).Msg("room has no game state yet")
	default:
		s.remove(roomID, ch)
		return nil, fmt.Errorf("load initial state for %s: %w", roomID, err)
	}

	go func() {
		<-ctx.Done()
		s.remove(roomID, ch)
	}()
	return ch, nil
}

// Start runs the notification loop until ctx ends.
func (s *PostgresSource) Start(ctx context.Context) error {
	log.Info().
		Str("channel", s.cfg.NotifyChannel).
		Dur("ping_interval", s.cfg.PingInterval).
		Dur("fallback_interval", s.cfg.FallbackInterval).
		Msg("listener started")

	fallbackTicker := s.clock.NewTicker(s.cfg.FallbackInterval)
	defer fallbackTicker.Stop()

	var pingCh <-chan time.Time
	if s.listener != nil {
		pingTicker := s.clock.NewTicker(s.cfg.PingInterval)
		defer pingTicker.Stop()
		pingCh = pingTicker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return s.Stop()
		case note := <-s.notify:
			if note == nil {
				// nil notification means the connection was re-established;
				// anything sent meanwhile was lost
				s.refreshAll(ctx)
				continue
			}
			if err := s.refresh(ctx, strings.TrimSpace(note.Extra)); err != nil {
				log.Error().Err(err).Str("room_id", note.Extra).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			s.refreshAll(ctx)
		case <-pingCh:
			if err := s.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// Stop closes the listener and ends every subscription.
func (s *PostgresSource) Stop() error {
	s.mu.Lock()
	for roomID, room := range s.rooms {
		for ch := range room.subs {
			delete(room.subs, ch)
			close(ch)
		}
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *PostgresSource) refreshAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.refresh(ctx, id); err != nil {
			log.Error().Err(err).Str("room_id", id).Msg("failed to refresh room state")
		}
	}
}

// refresh re-reads a room and delivers the row when it changed since the
// last delivery.
func (s *PostgresSource) refresh(ctx context.Context, roomID string) error {
	s.mu.Lock()
	_, watched := s.rooms[roomID]
	s.mu.Unlock()
	if !watched {
		return nil
	}

	state, err := s.loader.LoadState(ctx, roomID)
	if errors.Is(err, ErrNoState) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	if room.loaded && state.UpdatedAt != 0 && state.UpdatedAt == room.lastUpdated {
		return nil
	}
	room.loaded = true
	room.lastUpdated = state.UpdatedAt

	for ch := range room.subs {
		if offer(ch, state) {
			log.Warn().Str("room_id", roomID).Msg("snapshot subscriber lagging, dropped older snapshot")
		}
	}
	log.Debug().
		Str("room_id", roomID).
		Str("phase", string(state.Phase)).
		Int("round", state.CurrentRound).
		Msg("delivered room state")
	return nil
}

func (s *PostgresSource) remove(roomID string, ch chan models.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := room.subs[ch]; !ok {
		return
	}
	delete(room.subs, ch)
	close(ch)
	if len(room.subs) == 0 {
		delete(s.rooms, roomID)
	}
}
