package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoomEvent is the message sent to display clients.
type RoomEvent struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of room event
type EventType string

const (
	EventTypeView       EventType = "view"
	EventTypeResults    EventType = "results"
	EventTypeRoomClosed EventType = "room_closed"
	EventTypeError      EventType = "error"
)

// ClientMessage is a command sent by a display client.
type ClientMessage struct {
	Type string `json:"type"`
}

const ClientMessageSync = "sync"

// NewRoomEvent wraps payload in an event envelope.
func NewRoomEvent(roomID string, eventType EventType, payload any, now time.Time) (*RoomEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &RoomEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: now,
		Data:      data,
	}, nil
}
