// Package tally picks the winning phrase of a round from its ballots.
package tally

import "github.com/mcdev12/wordparty/go/internal/models"

// CandidateCount is the number of votes a candidate received.
type CandidateCount struct {
	UserID string `json:"user_id"`
	Votes  int    `json:"votes"`
}

// Result is the outcome of a round.
type Result struct {
	WinnerID string           `json:"winner_id"`
	Phrase   string           `json:"phrase"`
	Votes    int              `json:"votes"`
	Counts   []CandidateCount `json:"counts,omitempty"`

	// HasPhrase is false when the winner has no submission on record.
	HasPhrase bool `json:"has_phrase"`
	// FromServer is true when the result came from lastWinner rather than a
	// local count.
	FromServer bool `json:"from_server"`
}

// Tally counts ballots per candidate and returns the plurality winner.
// Candidates are ranked in the order they first received a vote and only a
// strictly greater count replaces the running leader, so ties go to the
// candidate encountered first. It returns false when no vote was cast.
func Tally(votes models.Votes, submissions models.Submissions) (Result, bool) {
	counts := make(map[string]int)
	var order []string

	for _, ballot := range votes.Entries() {
		if ballot.TargetID == "" {
			continue
		}
		if _, seen := counts[ballot.TargetID]; !seen {
			order = append(order, ballot.TargetID)
		}
		counts[ballot.TargetID]++
	}
	if len(order) == 0 {
		return Result{}, false
	}

	var (
		winner string
		best   int
	)
	ranked := make([]CandidateCount, 0, len(order))
	for _, id := range order {
		n := counts[id]
		ranked = append(ranked, CandidateCount{UserID: id, Votes: n})
		if n > best {
			winner, best = id, n
		}
	}

	phrase, ok := submissions[winner]
	return Result{
		WinnerID:  winner,
		Phrase:    phrase,
		Votes:     best,
		Counts:    ranked,
		HasPhrase: ok,
	}, true
}

// Resolve returns the round winner for a snapshot, preferring the winner the
// server already decided and falling back to a local count.
func Resolve(state models.GameState) (Result, bool) {
	if state.LastWinner != "" {
		phrase := state.LastWinningPhrase
		hasPhrase := phrase != ""
		if !hasPhrase {
			phrase, hasPhrase = state.Submissions[state.LastWinner]
		}

		res := Result{
			WinnerID:   state.LastWinner,
			Phrase:     phrase,
			HasPhrase:  hasPhrase,
			FromServer: true,
		}
		if local, ok := Tally(state.Votes, state.Submissions); ok {
			res.Counts = local.Counts
			for _, c := range local.Counts {
				if c.UserID == state.LastWinner {
					res.Votes = c.Votes
				}
			}
		}
		return res, true
	}
	return Tally(state.Votes, state.Submissions)
}
