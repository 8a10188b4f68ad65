package models

import "time"

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusActive   RoomStatus = "active"
	RoomStatusFinished RoomStatus = "finished"
)

// WinConditionType selects how a game ends.
type WinConditionType string

const (
	WinConditionRounds WinConditionType = "rounds"
	WinConditionScore  WinConditionType = "score"
)

// WinCondition ends the game after Target rounds or once a player reaches
// Target points.
type WinCondition struct {
	Type   WinConditionType `json:"type" yaml:"type"`
	Target int              `json:"target" yaml:"target"`
}

// RoomSettings holds the host-chosen configuration of a room. Times are in
// seconds.
type RoomSettings struct {
	MaxPlayers     int          `json:"maxPlayers" yaml:"max_players"`
	PromptTime     int          `json:"promptTime" yaml:"prompt_time"`
	SubmissionTime int          `json:"submissionTime" yaml:"submission_time"`
	VotingTime     int          `json:"votingTime" yaml:"voting_time"`
	ResultsTime    int          `json:"resultsTime" yaml:"results_time"`
	WinCondition   WinCondition `json:"winCondition" yaml:"win_condition"`
}

// PhaseTime returns the configured length of a phase, zero when the phase
// is not timed.
func (s RoomSettings) PhaseTime(p Phase) time.Duration {
	var secs int
	switch p {
	case PhasePrompt:
		secs = s.PromptTime
	case PhaseSubmission:
		secs = s.SubmissionTime
	case PhaseVoting:
		secs = s.VotingTime
	case PhaseResults:
		secs = s.ResultsTime
	}
	return time.Duration(secs) * time.Second
}

// Room is the server-owned lobby document.
type Room struct {
	ID       string         `json:"id"`
	Code     string         `json:"code,omitempty"`
	HostID   string         `json:"hostId"`
	Players  []Player       `json:"players"`
	Status   RoomStatus     `json:"status"`
	Settings RoomSettings   `json:"settings"`
	Scores   map[string]int `json:"scores"`
}

// Player looks up a player by id.
func (r Room) Player(id string) (Player, bool) {
	for _, p := range r.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Leader returns the player with the highest score. Ties keep the player
// listed first.
func (r Room) Leader() (Player, int, bool) {
	var (
		best  Player
		score int
		found bool
	)
	for _, p := range r.Players {
		s := r.Scores[p.ID]
		if !found || s > score {
			best, score, found = p, s, true
		}
	}
	return best, score, found
}
