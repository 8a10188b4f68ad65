package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Submissions maps user id to the phrase that user submitted this round.
type Submissions map[string]string

// UnmarshalJSON accepts bare phrases or objects with a "text" or "phrase"
// field. Entries it cannot read are dropped.
func (s *Submissions) UnmarshalJSON(data []byte) error {
	*s = Submissions{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("read submissions: %w", err)
	}
	for userID, val := range raw {
		var phrase string
		if err := json.Unmarshal(val, &phrase); err == nil {
			(*s)[userID] = phrase
			continue
		}
		var obj struct {
			Text   string `json:"text"`
			Phrase string `json:"phrase"`
		}
		if err := json.Unmarshal(val, &obj); err != nil {
			continue
		}
		if obj.Text != "" {
			(*s)[userID] = obj.Text
		} else if obj.Phrase != "" {
			(*s)[userID] = obj.Phrase
		}
	}
	return nil
}

// GameState is the server-owned state of a room's current round as pushed in
// snapshots. The client never writes it back.
type GameState struct {
	Phase             Phase       `json:"phase"`
	CurrentRound      int         `json:"currentRound"`
	CurrentPrompt     Prompt      `json:"currentPrompt"`
	PhaseStartTime    int64       `json:"phaseStartTime"` // epoch millis
	PhaseDuration     int         `json:"phaseDuration"`  // seconds
	Submissions       Submissions `json:"submissions,omitempty"`
	Votes             Votes       `json:"votes"`
	LastWinner        string      `json:"lastWinner,omitempty"`
	LastWinningPhrase string      `json:"lastWinningPhrase,omitempty"`

	// PhaseToken is changed by the server on every transition. Older backends
	// omit it; Token derives one from round and phase instead.
	PhaseToken string `json:"phaseToken,omitempty"`
	// UpdatedAt is the server write time in epoch millis, zero when unknown.
	UpdatedAt int64 `json:"updatedAt,omitempty"`
}

// UnmarshalJSON reads the numeric fields leniently: floats and numeric
// strings are accepted and anything else reads as 0, which leaves the phase
// untimed instead of failing the whole snapshot.
func (g *GameState) UnmarshalJSON(data []byte) error {
	type plain GameState
	aux := struct {
		*plain
		CurrentRound   json.RawMessage `json:"currentRound"`
		PhaseStartTime json.RawMessage `json:"phaseStartTime"`
		PhaseDuration  json.RawMessage `json:"phaseDuration"`
		UpdatedAt      json.RawMessage `json:"updatedAt"`
	}{plain: (*plain)(g)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	g.CurrentRound = int(lenientInt(aux.CurrentRound))
	g.PhaseStartTime = lenientInt(aux.PhaseStartTime)
	g.PhaseDuration = int(lenientInt(aux.PhaseDuration))
	g.UpdatedAt = lenientInt(aux.UpdatedAt)
	return nil
}

func lenientInt(raw json.RawMessage) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// Token identifies the phase instance this snapshot belongs to.
func (g GameState) Token() string {
	if g.PhaseToken != "" {
		return g.PhaseToken
	}
	return fmt.Sprintf("%d:%s", g.CurrentRound, g.Phase)
}

// PhaseStart returns phaseStartTime as a time.
func (g GameState) PhaseStart() time.Time {
	return time.UnixMilli(g.PhaseStartTime)
}

// Duration returns phaseDuration as a time.Duration.
func (g GameState) Duration() time.Duration {
	return time.Duration(g.PhaseDuration) * time.Second
}

// Deadline is the moment the current phase is due to end.
func (g GameState) Deadline() time.Time {
	return g.PhaseStart().Add(g.Duration())
}

// HasTimer reports whether the snapshot carries a usable countdown.
func (g GameState) HasTimer() bool {
	return g.PhaseStartTime > 0 && g.PhaseDuration > 0
}
