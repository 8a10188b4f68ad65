package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/wordparty/go/internal/models"
)

type fakeLoader struct {
	mu     sync.Mutex
	states map[string]models.GameState
	err    error
	loads  int
}

func (f *fakeLoader) LoadState(ctx context.Context, roomID string) (models.GameState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return models.GameState{}, f.err
	}
	state, ok := f.states[roomID]
	if !ok {
		return models.GameState{}, ErrNoState
	}
	return state, nil
}

func (f *fakeLoader) set(roomID string, state models.GameState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[roomID] = state
}

func assertNothing(t *testing.T, ch <-chan models.GameState) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if ok {
			t.Fatalf("unexpected snapshot %+v", s)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestPostgresSource(t *testing.T, loader *fakeLoader) (*PostgresSource, chan *pq.Notification, *clockwork.FakeClock, context.CancelFunc) {
	t.Helper()
	notify := make(chan *pq.Notification)
	clock := clockwork.NewFakeClock()
	src := newPostgresSource(loader, notify, PostgresConfig{FallbackInterval: 5 * time.Second}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("postgres source did not stop")
		}
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	return src, notify, clock, cancel
}

func TestPostgresSource_DeliversInitialAndNotifiedState(t *testing.T) {
	loader := &fakeLoader{states: map[string]models.GameState{
		"room-1": {Phase: models.PhasePrompt, CurrentRound: 1, UpdatedAt: 100},
	}}
	src, notify, _, _ := newTestPostgresSource(t, loader)

	ch, err := src.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, models.PhasePrompt, receive(t, ch).Phase)

	loader.set("room-1", models.GameState{Phase: models.PhaseSubmission, CurrentRound: 1, UpdatedAt: 200})
	notify <- &pq.Notification{Channel: "game_state_changed", Extra: "room-1"}
	assert.Equal(t, models.PhaseSubmission, receive(t, ch).Phase)

	// notifications for rooms nobody watches are ignored
	notify <- &pq.Notification{Extra: "room-9"}
	assertNothing(t, ch)
}

func TestPostgresSource_FallbackPollSkipsUnchangedRows(t *testing.T) {
	loader := &fakeLoader{states: map[string]models.GameState{
		"room-1": {Phase: models.PhaseVoting, CurrentRound: 2, UpdatedAt: 100},
	}}
	src, _, clock, _ := newTestPostgresSource(t, loader)

	ch, err := src.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)
	receive(t, ch)

	clock.Advance(5 * time.Second)
	assertNothing(t, ch)

	loader.set("room-1", models.GameState{Phase: models.PhaseResults, CurrentRound: 2, UpdatedAt: 300})
	clock.Advance(5 * time.Second)
	assert.Equal(t, models.PhaseResults, receive(t, ch).Phase)
}

func TestPostgresSource_ReconnectRereadsRooms(t *testing.T) {
	loader := &fakeLoader{states: map[string]models.GameState{}}
	src, notify, _, _ := newTestPostgresSource(t, loader)

	ch, err := src.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)
	assertNothing(t, ch)

	loader.set("room-1", models.GameState{Phase: models.PhasePrompt, CurrentRound: 1, UpdatedAt: 50})
	notify <- nil
	assert.Equal(t, 1, receive(t, ch).CurrentRound)
}

func TestPostgresSource_SubscribeFailsOnLoadError(t *testing.T) {
	loader := &fakeLoader{states: map[string]models.GameState{}, err: errors.New("connection refused")}
	src := newPostgresSource(loader, nil, DefaultPostgresConfig(), clockwork.NewFakeClock())

	_, err := src.Subscribe(context.Background(), "room-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Empty(t, src.rooms)
}

func TestPostgresSource_StopClosesSubscriptions(t *testing.T) {
	loader := &fakeLoader{states: map[string]models.GameState{}}
	src := newPostgresSource(loader, nil, DefaultPostgresConfig(), clockwork.NewFakeClock())

	ch, err := src.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)
	require.NoError(t, src.Stop())
	assertClosed(t, ch)
}
