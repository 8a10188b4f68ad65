package phasetimer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/models"
)

// DefaultTickInterval is how often the local countdown is recomputed.
const DefaultTickInterval = 100 * time.Millisecond

// Advancer performs the backend "advance phase" call.
type Advancer interface {
	AdvancePhase(ctx context.Context, req AdvanceRequest) error
}

// AdvancePolicy bounds how hard the runner tries to advance a phase.
// MaxAttempts of 1 gives up after the first failure.
type AdvancePolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultAdvancePolicy retries a failed advance twice with linear backoff.
func DefaultAdvancePolicy() AdvancePolicy {
	return AdvancePolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}
}

// Config holds runner settings.
type Config struct {
	TickInterval time.Duration
	Policy       AdvancePolicy
	// Clock is the time source. In production, clockwork.NewRealClock(); in
	// tests, a FakeClock.
	Clock clockwork.Clock
}

// DefaultConfig returns the production runner configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval: DefaultTickInterval,
		Policy:       DefaultAdvancePolicy(),
		Clock:        clockwork.NewRealClock(),
	}
}

// Runner drives a Reconciler from a snapshot channel and a local ticker and
// issues advance calls. Views are fanned out to subscribers when they change.
type Runner struct {
	rec      *Reconciler
	advancer Advancer
	cfg      Config

	subsMu   sync.Mutex
	subs     map[int]chan View
	nextSub  int
	lastView View
	hasView  bool
	closed   bool

	// cancelAdvance aborts the retries of the in-flight advance. Only the Run
	// goroutine touches it.
	cancelAdvance context.CancelFunc
	advanceWG     sync.WaitGroup
}

// NewRunner creates a runner for one room.
func NewRunner(roomID string, advancer Advancer, cfg Config) *Runner {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Runner{
		rec:      NewReconciler(roomID),
		advancer: advancer,
		cfg:      cfg,
		subs:     make(map[int]chan View),
	}
}

// Reconciler exposes the underlying state machine.
func (r *Runner) Reconciler() *Reconciler {
	return r.rec
}

// Run consumes snapshots until ctx ends or the channel closes. Ticks and
// snapshots are handled on this goroutine only, so a tick always sees the
// latest applied snapshot.
func (r *Runner) Run(ctx context.Context, snapshots <-chan models.GameState) error {
	roomID := r.rec.roomID
	log.Info().Str("room_id", roomID).Dur("tick_interval", r.cfg.TickInterval).Msg("phase timer started")

	var (
		ticker clockwork.Ticker
		tickCh <-chan time.Time
	)
	startTicker := func() {
		if ticker == nil {
			ticker = r.cfg.Clock.NewTicker(r.cfg.TickInterval)
			tickCh = ticker.Chan()
		}
	}
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickCh = nil
		}
	}

	defer func() {
		stopTicker()
		if r.cancelAdvance != nil {
			r.cancelAdvance()
		}
		r.advanceWG.Wait()
		r.CloseSubscribers()
		log.Info().Str("room_id", roomID).Msg("phase timer stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case state, ok := <-snapshots:
			if !ok {
				log.Warn().Str("room_id", roomID).Msg("snapshot stream closed")
				return nil
			}
			res := r.rec.Apply(state, r.cfg.Clock.Now())
			if res.Stale {
				log.Debug().
					Str("room_id", roomID).
					Int("round", state.CurrentRound).
					Str("phase", string(state.Phase)).
					Msg("dropping out-of-order snapshot")
				continue
			}
			if res.PhaseChanged {
				if r.cancelAdvance != nil {
					r.cancelAdvance()
					r.cancelAdvance = nil
				}
				log.Info().
					Str("room_id", roomID).
					Str("phase", string(res.View.Phase)).
					Str("phase_token", res.View.PhaseToken).
					Int("round", res.View.Round).
					Bool("flags_reset", res.FlagsReset).
					Msg("phase changed")
			}
			if res.Rearmed {
				log.Info().Str("room_id", roomID).Time("deadline", res.View.Deadline).Msg("phase deadline moved, re-armed advance")
			}
			r.publish()

			// Evaluate right away so a snapshot that arrives already expired
			// does not wait for the next tick.
			if r.tick(ctx, r.cfg.Clock.Now()) || !r.rec.NeedsTicks() {
				stopTicker()
			} else {
				startTicker()
			}

		case <-tickCh:
			if r.tick(ctx, r.cfg.Clock.Now()) {
				stopTicker()
			}
		}
	}
}

// tick recomputes the view and launches the advance call when the countdown
// expires. It reports whether an advance was launched.
func (r *Runner) tick(ctx context.Context, now time.Time) bool {
	_, req := r.rec.Tick(now)
	r.publish()
	if req == nil {
		return false
	}

	log.Info().
		Str("room_id", req.RoomID).
		Str("phase", string(req.Phase)).
		Str("phase_token", req.PhaseToken).
		Msg("phase timer expired, requesting advance")

	if r.cancelAdvance != nil {
		r.cancelAdvance()
	}
	actx, cancel := context.WithCancel(ctx)
	r.cancelAdvance = cancel
	r.advanceWG.Add(1)
	go func() {
		defer r.advanceWG.Done()
		r.advance(actx, *req)
	}()
	return true
}

// advance calls the backend, retrying per policy while the phase token is
// still current. Failures are logged and never surfaced.
func (r *Runner) advance(ctx context.Context, req AdvanceRequest) {
	policy := r.cfg.Policy
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if !r.rec.IsCurrent(req.PhaseToken) {
			log.Debug().Str("room_id", req.RoomID).Str("phase_token", req.PhaseToken).Msg("phase moved on, dropping advance")
			return
		}

		err := r.advancer.AdvancePhase(ctx, req)
		if err == nil {
			if attempt > 1 {
				log.Info().Str("room_id", req.RoomID).Int("attempt", attempt).Msg("advance succeeded after retry")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		log.Error().
			Err(err).
			Str("room_id", req.RoomID).
			Str("phase_token", req.PhaseToken).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Msg("advance phase failed")

		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-r.cfg.Clock.After(policy.Backoff * time.Duration(attempt)):
		}
	}
	log.Warn().Str("room_id", req.RoomID).Str("phase_token", req.PhaseToken).Msg("giving up on advance until next snapshot")
}

// MarkSubmitted sets the local submission flag and publishes the view.
func (r *Runner) MarkSubmitted() View {
	v := r.rec.MarkSubmitted()
	r.publish()
	return v
}

// MarkVoted sets the local vote flag and publishes the view.
func (r *Runner) MarkVoted() View {
	v := r.rec.MarkVoted()
	r.publish()
	return v
}

// View returns the latest view.
func (r *Runner) View() View {
	return r.rec.View()
}

// Subscribe returns a channel of view changes and a function that removes
// the subscription. The channel receives the current view first when one
// exists. Slow subscribers miss intermediate views. Once the runner has
// stopped the channel comes back already closed.
func (r *Runner) Subscribe() (<-chan View, func()) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	ch := make(chan View, 16)
	if r.hasView {
		ch <- r.lastView
	}
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch

	return ch, func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

// publish reads the view under subsMu so concurrent publishers deliver in
// the order the reconciler changed.
func (r *Runner) publish() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	v := r.rec.View()

	if r.hasView && sameView(r.lastView, v) {
		return
	}
	r.lastView = v
	r.hasView = true

	for id, ch := range r.subs {
		select {
		case ch <- v:
		default:
			log.Warn().Str("room_id", v.RoomID).Int("subscriber", id).Msg("view subscriber full, dropping update")
		}
	}
}

// CloseSubscribers ends every view subscription. Run calls it on exit;
// callers that never get to Run use it to release subscribers.
func (r *Runner) CloseSubscribers() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.closed = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

func sameView(a, b View) bool {
	return a.RoomID == b.RoomID &&
		a.Phase == b.Phase &&
		a.Round == b.Round &&
		a.PhaseToken == b.PhaseToken &&
		a.Prompt == b.Prompt &&
		a.Remaining == b.Remaining &&
		a.Deadline.Equal(b.Deadline) &&
		a.HasSubmitted == b.HasSubmitted &&
		a.HasVoted == b.HasVoted &&
		a.Advancing == b.Advancing
}
