package phasetimer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/wordparty/go/internal/models"
)

type MockAdvancer struct {
	mock.Mock
	calls chan AdvanceRequest
}

func newMockAdvancer() *MockAdvancer {
	return &MockAdvancer{calls: make(chan AdvanceRequest, 16)}
}

func (m *MockAdvancer) AdvancePhase(ctx context.Context, req AdvanceRequest) error {
	args := m.Called(ctx, req)
	m.calls <- req
	return args.Error(0)
}

type runnerHarness struct {
	clock     *clockwork.FakeClock
	advancer  *MockAdvancer
	runner    *Runner
	snapshots chan models.GameState
	views     <-chan View
	cancel    context.CancelFunc
	done      chan error
}

func startRunner(t *testing.T, policy AdvancePolicy, setup func(*MockAdvancer)) *runnerHarness {
	t.Helper()
	h := &runnerHarness{
		clock:     clockwork.NewFakeClockAt(epoch),
		advancer:  newMockAdvancer(),
		snapshots: make(chan models.GameState),
		done:      make(chan error, 1),
	}
	setup(h.advancer)

	h.runner = NewRunner("room-1", h.advancer, Config{
		TickInterval: DefaultTickInterval,
		Policy:       policy,
		Clock:        h.clock,
	})
	h.views, _ = h.runner.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.runner.Run(ctx, h.snapshots) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Error("runner did not stop")
		}
	})
	return h
}

func (h *runnerHarness) send(t *testing.T, state models.GameState) {
	t.Helper()
	select {
	case h.snapshots <- state:
	case <-time.After(time.Second):
		t.Fatal("runner did not accept snapshot")
	}
}

func (h *runnerHarness) waitView(t *testing.T, match func(View) bool) View {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case v, ok := <-h.views:
			require.True(t, ok, "view channel closed")
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("expected view never arrived")
			return View{}
		}
	}
}

func (h *runnerHarness) waitCall(t *testing.T) AdvanceRequest {
	t.Helper()
	select {
	case req := <-h.advancer.calls:
		return req
	case <-time.After(time.Second):
		t.Fatal("advance was not called")
		return AdvanceRequest{}
	}
}

func (h *runnerHarness) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case req := <-h.advancer.calls:
		t.Fatalf("unexpected advance call: %+v", req)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *runnerHarness) blockUntil(t *testing.T, waiters int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, waiters))
}

func TestRunner_ExpiredOnArrivalAdvancesOnce(t *testing.T) {
	h := startRunner(t, AdvancePolicy{MaxAttempts: 1}, func(m *MockAdvancer) {
		m.On("AdvancePhase", mock.Anything, mock.Anything).Return(nil)
	})

	state := snapshot(models.PhaseVoting, 1, epoch.Add(-26*time.Second), 25)
	h.send(t, state)

	req := h.waitCall(t)
	assert.Equal(t, "1:voting", req.PhaseToken)
	h.waitView(t, func(v View) bool { return v.Advancing && v.Remaining == 0 })

	// a duplicate snapshot and more time do not fire again
	h.send(t, state)
	h.clock.Advance(time.Second)
	h.assertNoCall(t)
	h.advancer.AssertNumberOfCalls(t, "AdvancePhase", 1)
}

func TestRunner_CountsDownAndAdvances(t *testing.T) {
	h := startRunner(t, AdvancePolicy{MaxAttempts: 1}, func(m *MockAdvancer) {
		m.On("AdvancePhase", mock.Anything, mock.Anything).Return(nil)
	})

	h.send(t, snapshot(models.PhaseSubmission, 1, epoch, 3))
	h.waitView(t, func(v View) bool { return v.Remaining == 3 })

	h.blockUntil(t, 1)
	h.clock.Advance(1100 * time.Millisecond)
	h.waitView(t, func(v View) bool { return v.Remaining == 1 })
	h.assertNoCall(t)

	h.clock.Advance(time.Second)
	req := h.waitCall(t)
	assert.Equal(t, models.PhaseSubmission, req.Phase)
	h.waitView(t, func(v View) bool { return v.Remaining == 0 && v.Advancing })
}

func TestRunner_RetriesFailedAdvance(t *testing.T) {
	h := startRunner(t, AdvancePolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}, func(m *MockAdvancer) {
		m.On("AdvancePhase", mock.Anything, mock.Anything).Return(errors.New("unavailable")).Once()
		m.On("AdvancePhase", mock.Anything, mock.Anything).Return(nil).Once()
	})

	h.send(t, snapshot(models.PhaseVoting, 1, epoch.Add(-time.Minute), 25))
	h.waitCall(t)

	// the ticker is stopped after firing, so the only waiter is the backoff
	h.blockUntil(t, 1)
	h.clock.Advance(500 * time.Millisecond)
	h.waitCall(t)

	h.clock.Advance(5 * time.Second)
	h.assertNoCall(t)
	h.advancer.AssertNumberOfCalls(t, "AdvancePhase", 2)
}

func TestRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	h := startRunner(t, AdvancePolicy{MaxAttempts: 1}, func(m *MockAdvancer) {
		m.On("AdvancePhase", mock.Anything, mock.Anything).Return(errors.New("unavailable"))
	})

	h.send(t, snapshot(models.PhaseVoting, 1, epoch.Add(-time.Minute), 25))
	h.waitCall(t)

	h.clock.Advance(10 * time.Second)
	h.assertNoCall(t)
	assert.Equal(t, 0, h.runner.View().Remaining)
}

func TestRunner_PhaseChangeAbortsRetries(t *testing.T) {
	h := startRunner(t, AdvancePolicy{MaxAttempts: 5, Backoff: time.Second}, func(m *MockAdvancer) {
		m.On("AdvancePhase", mock.Anything, mock.Anything).Return(errors.New("unavailable"))
	})

	h.send(t, snapshot(models.PhaseSubmission, 1, epoch.Add(-time.Minute), 25))
	h.waitCall(t)
	h.blockUntil(t, 1)

	h.runner.MarkSubmitted()
	h.send(t, snapshot(models.PhaseVoting, 1, epoch, 60))
	v := h.waitView(t, func(v View) bool { return v.Phase == models.PhaseVoting })
	assert.False(t, v.HasSubmitted)

	h.clock.Advance(5 * time.Second)
	h.assertNoCall(t)
	h.advancer.AssertNumberOfCalls(t, "AdvancePhase", 1)
}

func TestRunner_StopsWhenStreamCloses(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	runner := NewRunner("room-1", newMockAdvancer(), Config{Clock: clock})
	views, unsubscribe := runner.Subscribe()
	defer unsubscribe()

	snapshots := make(chan models.GameState)
	close(snapshots)
	require.NoError(t, runner.Run(context.Background(), snapshots))

	_, ok := <-views
	assert.False(t, ok)
}

func TestRunner_SubscribeReplaysLatestView(t *testing.T) {
	h := startRunner(t, AdvancePolicy{MaxAttempts: 1}, func(m *MockAdvancer) {})
	h.send(t, snapshot(models.PhaseSubmission, 4, epoch, 60))
	h.waitView(t, func(v View) bool { return v.Round == 4 })

	late, unsubscribe := h.runner.Subscribe()
	defer unsubscribe()
	select {
	case v := <-late:
		assert.Equal(t, 4, v.Round)
		assert.Equal(t, 60, v.Remaining)
	case <-time.After(time.Second):
		t.Fatal("late subscriber got no view")
	}
}

func TestRunner_SubscribeAfterStopIsClosed(t *testing.T) {
	runner := NewRunner("room-1", newMockAdvancer(), Config{Clock: clockwork.NewFakeClockAt(epoch)})
	snapshots := make(chan models.GameState)
	close(snapshots)
	require.NoError(t, runner.Run(context.Background(), snapshots))

	views, unsubscribe := runner.Subscribe()
	defer unsubscribe()
	select {
	case _, ok := <-views:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription after stop was left open")
	}
}

func TestRunner_CloseSubscribersWithoutRun(t *testing.T) {
	runner := NewRunner("room-1", newMockAdvancer(), Config{Clock: clockwork.NewFakeClockAt(epoch)})
	views, _ := runner.Subscribe()

	runner.CloseSubscribers()

	_, ok := <-views
	assert.False(t, ok)
}

func TestRunner_MarksPublishLatestFlags(t *testing.T) {
	runner := NewRunner("room-1", newMockAdvancer(), Config{Clock: clockwork.NewFakeClockAt(epoch)})
	// untimed phase, so no later tick would correct a stale view
	runner.rec.Apply(snapshot(models.PhaseVoting, 1, epoch, 0), epoch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			runner.tick(context.Background(), epoch)
		}
	}()
	runner.MarkSubmitted()
	runner.MarkVoted()
	<-done

	views, unsubscribe := runner.Subscribe()
	defer unsubscribe()
	v := <-views
	assert.True(t, v.HasSubmitted)
	assert.True(t, v.HasVoted)
}
