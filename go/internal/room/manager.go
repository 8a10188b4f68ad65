package room

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/backend"
	"github.com/mcdev12/wordparty/go/internal/game/phasetimer"
	"github.com/mcdev12/wordparty/go/internal/snapshot"
)

// ErrNotFound is returned for rooms without a running session.
var ErrNotFound = errors.New("room session not found")

type activeSession struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager runs at most one session per room.
type Manager struct {
	userID string
	stream snapshot.Stream
	client backend.Client
	cfg    phasetimer.Config

	// startMu serializes Start and Stop so a room never runs two sessions.
	startMu  sync.Mutex
	mu       sync.Mutex
	sessions map[string]*activeSession
	wg       sync.WaitGroup
}

func NewManager(userID string, stream snapshot.Stream, client backend.Client, cfg phasetimer.Config) *Manager {
	return &Manager{
		userID:   userID,
		stream:   stream,
		client:   client,
		cfg:      cfg,
		sessions: make(map[string]*activeSession),
	}
}

// Start launches a session for roomID. A session already running for the
// room is stopped and replaced.
func (m *Manager) Start(ctx context.Context, roomID string) *Session {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.Lock()
	old, ok := m.sessions[roomID]
	delete(m.sessions, roomID)
	m.mu.Unlock()
	if ok {
		log.Info().Str("room_id", roomID).Msg("replacing running room session")
		old.cancel()
		<-old.done
	}

	sctx, cancel := context.WithCancel(ctx)
	active := &activeSession{
		session: NewSession(roomID, m.userID, m.stream, m.client, m.cfg),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	m.sessions[roomID] = active
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(active.done)
		if err := active.session.Run(sctx); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("room session stopped with error")
		}
		m.forget(roomID, active)
	}()

	log.Info().Str("room_id", roomID).Msg("room session started")
	return active.session
}

// Get returns the running session for roomID.
func (m *Manager) Get(roomID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, ok := m.sessions[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return active.session, nil
}

// Stop ends the session for roomID and waits for it to exit.
func (m *Manager) Stop(roomID string) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.Lock()
	active, ok := m.sessions[roomID]
	if ok {
		delete(m.sessions, roomID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	active.cancel()
	<-active.done
	log.Info().Str("room_id", roomID).Msg("room session stopped")
	return nil
}

// Rooms lists the rooms with a running session.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every session and waits for them.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, active := range m.sessions {
		active.cancel()
	}
	m.sessions = make(map[string]*activeSession)
	m.mu.Unlock()
	m.wg.Wait()
}

// forget drops a session that exited by itself, unless it was replaced.
func (m *Manager) forget(roomID string, active *activeSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[roomID]; ok && cur == active {
		delete(m.sessions, roomID)
	}
}
