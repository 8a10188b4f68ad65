package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Vote is one ballot: VoterID voted for the submission of TargetID.
type Vote struct {
	VoterID  string `json:"voterId"`
	TargetID string `json:"targetId"`
}

// Votes maps voter id to voted-for user id while keeping the order in which
// voters appear in the server document. That order is the tally tie-break.
type Votes struct {
	entries []Vote
	index   map[string]int
}

// NewVotes builds a Votes collection from ballots in encounter order.
func NewVotes(ballots ...Vote) Votes {
	var v Votes
	for _, b := range ballots {
		v.Set(b.VoterID, b.TargetID)
	}
	return v
}

// Set records a ballot. Re-voting keeps the voter's original position.
func (v *Votes) Set(voterID, targetID string) {
	if v.index == nil {
		v.index = make(map[string]int)
	}
	if i, ok := v.index[voterID]; ok {
		v.entries[i].TargetID = targetID
		return
	}
	v.index[voterID] = len(v.entries)
	v.entries = append(v.entries, Vote{VoterID: voterID, TargetID: targetID})
}

// Get returns the target a voter chose.
func (v Votes) Get(voterID string) (string, bool) {
	i, ok := v.index[voterID]
	if !ok {
		return "", false
	}
	return v.entries[i].TargetID, true
}

// Len returns the number of ballots.
func (v Votes) Len() int {
	return len(v.entries)
}

// Entries returns a copy of the ballots in encounter order.
func (v Votes) Entries() []Vote {
	out := make([]Vote, len(v.entries))
	copy(out, v.entries)
	return out
}

// MarshalJSON writes the ballots as a JSON object in encounter order.
func (v Votes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range v.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.VoterID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.TargetID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of voter id to target. Values may be a
// bare user id or an object with a "votedFor" or "targetId" field; other
// values are skipped. A non-object document yields no ballots.
func (v *Votes) UnmarshalJSON(data []byte) error {
	*v = Votes{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read votes object: %w", err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read vote key: %w", err)
		}
		voter, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected vote key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read vote for %s: %w", voter, err)
		}
		if target, ok := decodeVoteTarget(raw); ok {
			v.Set(voter, target)
		}
	}
	return nil
}

func decodeVoteTarget(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var obj struct {
		VotedFor string `json:"votedFor"`
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	if obj.VotedFor != "" {
		return obj.VotedFor, true
	}
	if obj.TargetID != "" {
		return obj.TargetID, true
	}
	return "", false
}
