package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/wordparty/go/internal/models"
)

func receive(t *testing.T, ch <-chan models.GameState) models.GameState {
	t.Helper()
	select {
	case state, ok := <-ch:
		require.True(t, ok, "channel closed")
		return state
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
		return models.GameState{}
	}
}

func assertClosed(t *testing.T, ch <-chan models.GameState) {
	t.Helper()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel to be closed")
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
}

func TestFeed_ReplaysLatestAndFansOut(t *testing.T) {
	feed := NewFeed()
	feed.Publish("room-1", models.GameState{Phase: models.PhasePrompt, CurrentRound: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := feed.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	b, err := feed.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	other, err := feed.Subscribe(ctx, "room-2")
	require.NoError(t, err)

	assert.Equal(t, models.PhasePrompt, receive(t, a).Phase)
	assert.Equal(t, models.PhasePrompt, receive(t, b).Phase)

	feed.Publish("room-1", models.GameState{Phase: models.PhaseSubmission, CurrentRound: 1})
	assert.Equal(t, models.PhaseSubmission, receive(t, a).Phase)
	assert.Equal(t, models.PhaseSubmission, receive(t, b).Phase)

	select {
	case s := <-other:
		t.Fatalf("room-2 received %+v", s)
	default:
	}
}

func TestFeed_KeepsNewestWhenSubscriberLags(t *testing.T) {
	feed := NewFeed()
	ch, err := feed.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)

	for round := 1; round <= subscriberBuffer+5; round++ {
		feed.Publish("room-1", models.GameState{CurrentRound: round})
	}

	var last models.GameState
	for i := 0; i < subscriberBuffer; i++ {
		last = receive(t, ch)
	}
	assert.Equal(t, subscriberBuffer+5, last.CurrentRound)
}

func TestFeed_CancelEndsSubscription(t *testing.T) {
	feed := NewFeed()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := feed.Subscribe(ctx, "room-1")
	require.NoError(t, err)

	cancel()
	assertClosed(t, ch)

	// publishing after the subscriber left must not panic
	feed.Publish("room-1", models.GameState{CurrentRound: 2})
	state, ok := feed.Latest("room-1")
	require.True(t, ok)
	assert.Equal(t, 2, state.CurrentRound)
}

func TestFeed_Close(t *testing.T) {
	feed := NewFeed()
	ch, err := feed.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)

	feed.Close()
	assertClosed(t, ch)

	_, err = feed.Subscribe(context.Background(), "room-1")
	assert.ErrorIs(t, err, ErrClosed)
}
