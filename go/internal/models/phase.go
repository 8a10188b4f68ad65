package models

// Phase is one stage of a game round.
type Phase string

const (
	PhasePrompt     Phase = "prompt"
	PhaseSubmission Phase = "submission"
	PhaseVoting     Phase = "voting"
	PhaseWaiting    Phase = "waiting"
	PhaseResults    Phase = "results"
)

// Valid reports whether p is one of the known phases. Unknown phases are kept
// verbatim on snapshots so a newer backend never breaks decoding.
func (p Phase) Valid() bool {
	switch p {
	case PhasePrompt, PhaseSubmission, PhaseVoting, PhaseWaiting, PhaseResults:
		return true
	}
	return false
}

// AcceptsSubmissions reports whether players may send a phrase in this phase.
func (p Phase) AcceptsSubmissions() bool {
	return p == PhaseSubmission
}

// AcceptsVotes reports whether players may vote in this phase.
func (p Phase) AcceptsVotes() bool {
	return p == PhaseVoting
}

func (p Phase) String() string {
	return string(p)
}
