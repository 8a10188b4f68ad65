package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/game/phasetimer"
	"github.com/mcdev12/wordparty/go/internal/game/tally"
	"github.com/mcdev12/wordparty/go/internal/models"
)

// StatePublisher receives every state the local backend writes.
type StatePublisher interface {
	Publish(roomID string, state models.GameState)
}

// DefaultPrompts is the prompt deck used when none is configured.
var DefaultPrompts = []string{
	"Name a holiday nobody celebrates",
	"The worst thing to hear from a pilot",
	"A terrible name for a pet goldfish",
	"What the cat is actually thinking",
}

var _ Client = (*LocalBackend)(nil)

type localRoom struct {
	room  models.Room
	state models.GameState
}

// LocalBackend is an in-process game backend for development. It owns the
// room state, applies writes and phase advances, and publishes each new
// state.
type LocalBackend struct {
	publisher StatePublisher
	settings  models.RoomSettings
	prompts   []string
	clock     clockwork.Clock

	mu    sync.Mutex
	rooms map[string]*localRoom
}

// NewLocalBackend creates a local backend. A nil clock uses the real clock.
func NewLocalBackend(publisher StatePublisher, settings models.RoomSettings, prompts []string, clock clockwork.Clock) *LocalBackend {
	if len(prompts) == 0 {
		prompts = DefaultPrompts
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LocalBackend{
		publisher: publisher,
		settings:  settings,
		prompts:   prompts,
		clock:     clock,
		rooms:     make(map[string]*localRoom),
	}
}

// CreateRoom starts round one for players and publishes it.
func (b *LocalBackend) CreateRoom(roomID string, players []models.Player) models.GameState {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := &localRoom{room: models.Room{
		ID:       roomID,
		Players:  players,
		Status:   models.RoomStatusActive,
		Settings: b.settings,
		Scores:   make(map[string]int),
	}}
	for _, p := range players {
		if p.IsHost {
			r.room.HostID = p.ID
		}
	}
	b.rooms[roomID] = r
	b.enterLocked(r, models.PhasePrompt, 1)

	log.Info().Str("room_id", roomID).Int("players", len(players)).Msg("local room created")
	return r.state
}

// Room returns the lobby document of roomID.
func (b *LocalBackend) Room(roomID string) (models.Room, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return r.room, true
}

// AdvancePhase moves the room to its next phase. A token that no longer
// names the current phase reports ErrPhaseAlreadyAdvanced.
func (b *LocalBackend) AdvancePhase(ctx context.Context, req phasetimer.AdvanceRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rooms[req.RoomID]
	if !ok {
		return fmt.Errorf("advance phase: %w: unknown room %s", ErrInvalidArgument, req.RoomID)
	}
	if r.state.Token() != req.PhaseToken {
		return fmt.Errorf("advance phase: %w", ErrPhaseAlreadyAdvanced)
	}

	round := r.state.CurrentRound
	switch r.state.Phase {
	case models.PhasePrompt:
		b.enterLocked(r, models.PhaseSubmission, round)
	case models.PhaseSubmission:
		b.enterLocked(r, models.PhaseVoting, round)
	case models.PhaseVoting:
		b.scoreLocked(r)
		b.enterLocked(r, models.PhaseResults, round)
	case models.PhaseResults:
		if b.finishedLocked(r) {
			r.room.Status = models.RoomStatusFinished
			b.enterLocked(r, models.PhaseWaiting, round)
		} else {
			b.enterLocked(r, models.PhasePrompt, round+1)
		}
	default:
		return fmt.Errorf("advance phase: %w: room is %s", ErrRejected, r.state.Phase)
	}
	return nil
}

// SubmitPhrase records a phrase during the submission phase.
func (b *LocalBackend) SubmitPhrase(ctx context.Context, roomID, userID, phrase string) error {
	phrase = strings.TrimSpace(phrase)
	if roomID == "" || userID == "" || phrase == "" {
		return fmt.Errorf("submit phrase: %w: room, user and phrase are required", ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.playerRoomLocked(roomID, userID)
	if err != nil {
		return fmt.Errorf("submit phrase: %w", err)
	}
	if !r.state.Phase.AcceptsSubmissions() {
		return fmt.Errorf("submit phrase: %w: room is in %s", ErrRejected, r.state.Phase)
	}
	if _, dup := r.state.Submissions[userID]; dup {
		return fmt.Errorf("submit phrase: %w: already submitted", ErrRejected)
	}

	subs := make(models.Submissions, len(r.state.Submissions)+1)
	for k, v := range r.state.Submissions {
		subs[k] = v
	}
	subs[userID] = phrase
	r.state.Submissions = subs
	b.publishLocked(r)
	return nil
}

// CastVote records a vote during the voting phase.
func (b *LocalBackend) CastVote(ctx context.Context, roomID, userID, votedForID string) error {
	if roomID == "" || userID == "" || votedForID == "" {
		return fmt.Errorf("cast vote: %w: room, voter and target are required", ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.playerRoomLocked(roomID, userID)
	if err != nil {
		return fmt.Errorf("cast vote: %w", err)
	}
	if !r.state.Phase.AcceptsVotes() {
		return fmt.Errorf("cast vote: %w: room is in %s", ErrRejected, r.state.Phase)
	}
	if votedForID == userID {
		return fmt.Errorf("cast vote: %w: self vote", ErrRejected)
	}
	if _, ok := r.state.Submissions[votedForID]; !ok {
		return fmt.Errorf("cast vote: %w: no submission from %s", ErrInvalidArgument, votedForID)
	}
	if _, dup := r.state.Votes.Get(userID); dup {
		return fmt.Errorf("cast vote: %w: already voted", ErrRejected)
	}

	votes := models.NewVotes(r.state.Votes.Entries()...)
	votes.Set(userID, votedForID)
	r.state.Votes = votes
	b.publishLocked(r)
	return nil
}

func (b *LocalBackend) playerRoomLocked(roomID, userID string) (*localRoom, error) {
	r, ok := b.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown room %s", ErrInvalidArgument, roomID)
	}
	if _, ok := r.room.Player(userID); !ok {
		return nil, fmt.Errorf("%w: %s is not in room %s", ErrInvalidArgument, userID, roomID)
	}
	return r, nil
}

// enterLocked starts phase p of round. A new round clears submissions and
// votes; results keep them so clients can show the tally.
func (b *LocalBackend) enterLocked(r *localRoom, p models.Phase, round int) {
	next := models.GameState{
		Phase:             p,
		CurrentRound:      round,
		CurrentPrompt:     models.Prompt{Text: b.prompts[(round-1)%len(b.prompts)]},
		PhaseStartTime:    b.clock.Now().UnixMilli(),
		PhaseDuration:     int(r.room.Settings.PhaseTime(p).Seconds()),
		PhaseToken:        uuid.New().String(),
		LastWinner:        r.state.LastWinner,
		LastWinningPhrase: r.state.LastWinningPhrase,
	}
	if round == r.state.CurrentRound {
		next.Submissions = r.state.Submissions
		next.Votes = r.state.Votes
	} else {
		next.LastWinner = ""
		next.LastWinningPhrase = ""
	}
	if p == models.PhaseWaiting {
		next.PhaseDuration = 0
	}
	r.state = next
	b.publishLocked(r)

	log.Debug().
		Str("room_id", r.room.ID).
		Str("phase", string(p)).
		Int("round", round).
		Str("phase_token", next.PhaseToken).
		Msg("local room entered phase")
}

// scoreLocked records the round winner and awards a point.
func (b *LocalBackend) scoreLocked(r *localRoom) {
	res, ok := tally.Tally(r.state.Votes, r.state.Submissions)
	if !ok {
		return
	}
	r.state.LastWinner = res.WinnerID
	r.state.LastWinningPhrase = res.Phrase
	r.room.Scores[res.WinnerID]++
}

func (b *LocalBackend) finishedLocked(r *localRoom) bool {
	win := r.room.Settings.WinCondition
	if win.Target <= 0 {
		return false
	}
	switch win.Type {
	case models.WinConditionScore:
		_, score, ok := r.room.Leader()
		return ok && score >= win.Target
	default:
		return r.state.CurrentRound >= win.Target
	}
}

func (b *LocalBackend) publishLocked(r *localRoom) {
	r.state.UpdatedAt = b.clock.Now().UnixMilli()
	b.publisher.Publish(r.room.ID, r.state)
}
