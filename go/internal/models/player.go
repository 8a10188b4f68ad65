package models

import "time"

// Player is a member of a room.
type Player struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	IsHost      bool      `json:"isHost,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}
