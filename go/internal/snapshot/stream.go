package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/wordparty/go/internal/models"
)

// ErrClosed is returned when subscribing to a source that has been stopped.
var ErrClosed = errors.New("snapshot source closed")

// Stream delivers game state snapshots for a room. The returned channel is
// closed when ctx ends or the source fails terminally.
type Stream interface {
	Subscribe(ctx context.Context, roomID string) (<-chan models.GameState, error)
}

// EventTypeGameState is the envelope type carrying a full game state document.
const EventTypeGameState = "GameStateUpdated"

// Envelope is the message wrapper used on the bus.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomID    string          `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses a bus message into a game state. Envelopes of other
// types return ok=false without error.
func DecodeEnvelope(data []byte) (Envelope, models.GameState, bool, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, models.GameState{}, false, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.EventType != "" && env.EventType != EventTypeGameState {
		return env, models.GameState{}, false, nil
	}
	if len(env.Payload) == 0 {
		return env, models.GameState{}, false, fmt.Errorf("event %s has no payload", env.EventID)
	}

	var state models.GameState
	if err := json.Unmarshal(env.Payload, &state); err != nil {
		return env, models.GameState{}, false, fmt.Errorf("unmarshal game state: %w", err)
	}
	if state.UpdatedAt == 0 && !env.Timestamp.IsZero() {
		state.UpdatedAt = env.Timestamp.UnixMilli()
	}
	return env, state, true, nil
}

// offer pushes state onto ch, replacing the oldest buffered snapshot when
// the buffer is full so the newest state is never lost.
func offer(ch chan models.GameState, state models.GameState) (dropped bool) {
	for {
		select {
		case ch <- state:
			return dropped
		default:
		}
		select {
		case <-ch:
			dropped = true
		default:
		}
	}
}
