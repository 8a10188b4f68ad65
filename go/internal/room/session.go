// Package room ties a room's snapshot stream to its phase timer and carries
// out the local player's writes.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/backend"
	"github.com/mcdev12/wordparty/go/internal/game/phasetimer"
	"github.com/mcdev12/wordparty/go/internal/game/tally"
	"github.com/mcdev12/wordparty/go/internal/models"
	"github.com/mcdev12/wordparty/go/internal/snapshot"
)

var (
	ErrNoPlayer         = errors.New("session has no local player")
	ErrWrongPhase       = errors.New("action not allowed in current phase")
	ErrAlreadySubmitted = errors.New("already submitted this round")
	ErrAlreadyVoted     = errors.New("already voted this round")
	ErrSelfVote         = errors.New("cannot vote for your own phrase")
	ErrEmptyPhrase      = errors.New("phrase is empty")
	ErrUnknownCandidate = errors.New("no submission from that player")
	ErrActionFailed     = errors.New("action failed, please try again")
)

// Session follows one room for one local player. UserID may be empty for a
// read-only watcher, in which case Submit and Vote return ErrNoPlayer.
type Session struct {
	roomID string
	userID string
	stream snapshot.Stream
	client backend.Client
	runner *phasetimer.Runner
}

// NewSession creates a session. Run must be called to start following the
// room.
func NewSession(roomID, userID string, stream snapshot.Stream, client backend.Client, cfg phasetimer.Config) *Session {
	return &Session{
		roomID: roomID,
		userID: userID,
		stream: stream,
		client: client,
		runner: phasetimer.NewRunner(roomID, client, cfg),
	}
}

func (s *Session) RoomID() string { return s.roomID }
func (s *Session) UserID() string { return s.userID }

// Run subscribes to the room's snapshots and drives the phase timer until
// ctx ends or the stream closes.
func (s *Session) Run(ctx context.Context) error {
	snapshots, err := s.stream.Subscribe(ctx, s.roomID)
	if err != nil {
		s.runner.CloseSubscribers()
		return fmt.Errorf("subscribe to room %s: %w", s.roomID, err)
	}
	return s.runner.Run(ctx, snapshots)
}

// View returns the latest derived view.
func (s *Session) View() phasetimer.View {
	return s.runner.View()
}

// Subscribe streams view changes. Call the returned function to stop.
func (s *Session) Subscribe() (<-chan phasetimer.View, func()) {
	return s.runner.Subscribe()
}

// State returns the latest applied snapshot.
func (s *Session) State() (models.GameState, bool) {
	return s.runner.Reconciler().State()
}

// Results resolves the round winner from the latest snapshot.
func (s *Session) Results() (tally.Result, bool) {
	state, ok := s.State()
	if !ok {
		return tally.Result{}, false
	}
	return tally.Resolve(state)
}

// Submit sends the local player's phrase for the current round.
func (s *Session) Submit(ctx context.Context, phrase string) error {
	if s.userID == "" {
		return ErrNoPlayer
	}
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return ErrEmptyPhrase
	}

	state, view, err := s.current()
	if err != nil {
		return err
	}
	if !state.Phase.AcceptsSubmissions() {
		return ErrWrongPhase
	}
	if _, ok := state.Submissions[s.userID]; ok || view.HasSubmitted {
		return ErrAlreadySubmitted
	}

	if err := s.client.SubmitPhrase(ctx, s.roomID, s.userID, phrase); err != nil {
		log.Error().
			Err(err).
			Str("room_id", s.roomID).
			Str("user_id", s.userID).
			Str("phase_token", view.PhaseToken).
			Msg("submit phrase failed")
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}

	s.markIfCurrent(view.PhaseToken, s.runner.MarkSubmitted)
	log.Info().Str("room_id", s.roomID).Str("user_id", s.userID).Int("round", view.Round).Msg("phrase submitted")
	return nil
}

// Vote sends the local player's vote for votedFor's phrase.
func (s *Session) Vote(ctx context.Context, votedFor string) error {
	if s.userID == "" {
		return ErrNoPlayer
	}

	state, view, err := s.current()
	if err != nil {
		return err
	}
	if !state.Phase.AcceptsVotes() {
		return ErrWrongPhase
	}
	if votedFor == s.userID {
		return ErrSelfVote
	}
	if _, ok := state.Submissions[votedFor]; !ok && len(state.Submissions) > 0 {
		return ErrUnknownCandidate
	}
	if _, ok := state.Votes.Get(s.userID); ok || view.HasVoted {
		return ErrAlreadyVoted
	}

	if err := s.client.CastVote(ctx, s.roomID, s.userID, votedFor); err != nil {
		log.Error().
			Err(err).
			Str("room_id", s.roomID).
			Str("user_id", s.userID).
			Str("voted_for", votedFor).
			Msg("cast vote failed")
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}

	s.markIfCurrent(view.PhaseToken, s.runner.MarkVoted)
	log.Info().Str("room_id", s.roomID).Str("user_id", s.userID).Int("round", view.Round).Msg("vote cast")
	return nil
}

func (s *Session) current() (models.GameState, phasetimer.View, error) {
	state, ok := s.State()
	if !ok {
		return models.GameState{}, phasetimer.View{}, ErrWrongPhase
	}
	return state, s.runner.View(), nil
}

// markIfCurrent sets a phase flag only if the phase the write was made in is
// still the applied one.
func (s *Session) markIfCurrent(token string, mark func() phasetimer.View) {
	if !s.runner.Reconciler().IsCurrent(token) {
		log.Debug().Str("room_id", s.roomID).Str("phase_token", token).Msg("phase moved on during write, not marking")
		return
	}
	mark()
}
