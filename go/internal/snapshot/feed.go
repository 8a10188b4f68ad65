package snapshot

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/models"
)

const subscriberBuffer = 8

// Feed is an in-memory Stream. Publish fans a snapshot out to every
// subscriber of the room; new subscribers receive the latest snapshot first.
type Feed struct {
	mu     sync.Mutex
	latest map[string]models.GameState
	subs   map[string]map[chan models.GameState]struct{}
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		latest: make(map[string]models.GameState),
		subs:   make(map[string]map[chan models.GameState]struct{}),
	}
}

// Subscribe implements Stream.
func (f *Feed) Subscribe(ctx context.Context, roomID string) (<-chan models.GameState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	ch := make(chan models.GameState, subscriberBuffer)
	if state, ok := f.latest[roomID]; ok {
		ch <- state
	}
	if f.subs[roomID] == nil {
		f.subs[roomID] = make(map[chan models.GameState]struct{})
	}
	f.subs[roomID][ch] = struct{}{}

	go func() {
		<-ctx.Done()
		f.remove(roomID, ch)
	}()
	return ch, nil
}

// Publish records state as the latest snapshot for roomID and delivers it.
func (f *Feed) Publish(roomID string, state models.GameState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	f.latest[roomID] = state
	for ch := range f.subs[roomID] {
		if offer(ch, state) {
			log.Warn().Str("room_id", roomID).Msg("snapshot subscriber lagging, dropped older snapshot")
		}
	}
}

// Latest returns the last published snapshot for roomID.
func (f *Feed) Latest(roomID string) (models.GameState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.latest[roomID]
	return state, ok
}

// Close ends every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for roomID, subs := range f.subs {
		for ch := range subs {
			close(ch)
		}
		delete(f.subs, roomID)
	}
}

func (f *Feed) remove(roomID string, ch chan models.GameState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs, ok := f.subs[roomID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(f.subs, roomID)
	}
}
