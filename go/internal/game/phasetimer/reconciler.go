// Package phasetimer keeps a local phase countdown in step with the deadline
// declared by server snapshots and requests a phase advance once it elapses.
package phasetimer

import (
	"sync"
	"time"

	"github.com/mcdev12/wordparty/go/internal/models"
)

// View is the locally derived state of a room shown to players.
type View struct {
	RoomID       string       `json:"room_id"`
	Phase        models.Phase `json:"phase"`
	Round        int          `json:"round"`
	PhaseToken   string       `json:"phase_token"`
	Prompt       string       `json:"prompt"`
	Remaining    int          `json:"time_remaining_sec"`
	Deadline     time.Time    `json:"deadline"`
	HasSubmitted bool         `json:"has_submitted"`
	HasVoted     bool         `json:"has_voted"`
	Advancing    bool         `json:"advancing"`
}

// AdvanceRequest asks the backend to move a room past the phase identified
// by PhaseToken.
type AdvanceRequest struct {
	RoomID     string       `json:"room_id"`
	PhaseToken string       `json:"phase_token"`
	Round      int          `json:"round"`
	Phase      models.Phase `json:"phase"`
}

// ApplyResult describes what a snapshot changed.
type ApplyResult struct {
	View         View
	PhaseChanged bool
	FlagsReset   bool
	Stale        bool
	Rearmed      bool
}

// Reconciler is the synchronous core of the phase timer. It holds the last
// applied snapshot, the phase-scoped flags and the advance guard. It owns no
// goroutines or clocks; callers pass the current time in.
type Reconciler struct {
	mu sync.Mutex

	roomID   string
	state    models.GameState
	hasState bool
	token    string
	deadline time.Time

	hasSubmitted bool
	hasVoted     bool

	// firedToken is the phase token an advance was already requested for.
	firedToken string
	remaining  int
}

// NewReconciler creates a reconciler for one room.
func NewReconciler(roomID string) *Reconciler {
	return &Reconciler{roomID: roomID}
}

// Apply reconciles a server snapshot. A snapshot for a different phase
// instance resets hasSubmitted, hasVoted and the advance guard. A duplicate of
// the current phase leaves them alone, unless the server moved the deadline,
// in which case only the guard is re-armed. Snapshots older than the applied
// one are dropped.
func (r *Reconciler) Apply(state models.GameState, now time.Time) ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasState && r.isStale(state) {
		return ApplyResult{View: r.viewLocked(), Stale: true}
	}

	var res ApplyResult
	token := state.Token()
	deadline := state.Deadline()

	switch {
	case !r.hasState || state.Phase != r.state.Phase || token != r.token:
		res.PhaseChanged = true
		if r.hasSubmitted || r.hasVoted {
			res.FlagsReset = true
		}
		r.hasSubmitted = false
		r.hasVoted = false
		r.firedToken = ""
	case r.firedToken == token && !deadline.Equal(r.deadline):
		r.firedToken = ""
		res.Rearmed = true
	}

	r.state = state
	r.hasState = true
	r.token = token
	r.deadline = deadline
	r.remaining = Remaining(now, state.PhaseStartTime, state.PhaseDuration)

	res.View = r.viewLocked()
	return res
}

func (r *Reconciler) isStale(state models.GameState) bool {
	if state.CurrentRound < r.state.CurrentRound {
		return true
	}
	return state.UpdatedAt > 0 && r.state.UpdatedAt > 0 && state.UpdatedAt < r.state.UpdatedAt
}

// Tick recomputes the countdown. It returns an advance request the first
// time the countdown of a timed phase reaches zero; later ticks for the same
// phase token return nil.
func (r *Reconciler) Tick(now time.Time) (View, *AdvanceRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasState {
		return r.viewLocked(), nil
	}

	r.remaining = Remaining(now, r.state.PhaseStartTime, r.state.PhaseDuration)
	if r.remaining > 0 || !r.state.HasTimer() || r.firedToken == r.token {
		return r.viewLocked(), nil
	}

	r.firedToken = r.token
	req := &AdvanceRequest{
		RoomID:     r.roomID,
		PhaseToken: r.token,
		Round:      r.state.CurrentRound,
		Phase:      r.state.Phase,
	}
	return r.viewLocked(), req
}

// NeedsTicks reports whether a countdown is running that has not yet fired.
func (r *Reconciler) NeedsTicks() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasState && r.state.HasTimer() && r.firedToken != r.token
}

// IsCurrent reports whether token still names the applied phase instance.
func (r *Reconciler) IsCurrent(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasState && r.token == token
}

// MarkSubmitted records that the local player submitted in this phase.
func (r *Reconciler) MarkSubmitted() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasSubmitted = true
	return r.viewLocked()
}

// MarkVoted records that the local player voted in this phase.
func (r *Reconciler) MarkVoted() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasVoted = true
	return r.viewLocked()
}

// View returns the current view without recomputing the countdown.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// State returns the last applied snapshot.
func (r *Reconciler) State() (models.GameState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.hasState
}

func (r *Reconciler) viewLocked() View {
	v := View{
		RoomID:       r.roomID,
		HasSubmitted: r.hasSubmitted,
		HasVoted:     r.hasVoted,
	}
	if !r.hasState {
		v.Prompt = models.PromptPlaceholder
		return v
	}
	v.Phase = r.state.Phase
	v.Round = r.state.CurrentRound
	v.PhaseToken = r.token
	v.Prompt = r.state.CurrentPrompt.Display()
	v.Remaining = r.remaining
	if r.state.HasTimer() {
		v.Deadline = r.deadline
	}
	v.Advancing = r.firedToken != "" && r.firedToken == r.token
	return v
}
