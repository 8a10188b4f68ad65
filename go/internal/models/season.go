package models

import (
	"time"

	"github.com/google/uuid"
)

// Season is a ranked leaderboard period.
type Season struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Active reports whether t falls inside the season.
func (s Season) Active(t time.Time) bool {
	return !t.Before(s.StartsAt) && t.Before(s.EndsAt)
}

// ScoreEntry is one row of a season leaderboard.
type ScoreEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Wins        int    `json:"wins"`
	Points      int    `json:"points"`
}
