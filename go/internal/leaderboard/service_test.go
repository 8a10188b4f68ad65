package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/wordparty/go/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CurrentSeason(ctx context.Context, now time.Time) (models.Season, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(models.Season), args.Error(1)
}

func (m *MockStore) TopScores(ctx context.Context, seasonID uuid.UUID, limit int) ([]models.ScoreEntry, error) {
	args := m.Called(ctx, seasonID, limit)
	if v := args.Get(0); v != nil {
		return v.([]models.ScoreEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

var start = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func season(id uuid.UUID, from time.Time, length time.Duration) models.Season {
	return models.Season{ID: id, Name: "Autumn", StartsAt: from, EndsAt: from.Add(length)}
}

func TestService_CachesSeasonAndScores(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start.Add(time.Hour))
	store := &MockStore{}
	autumn := season(uuid.New(), start, 30*24*time.Hour)
	entries := []models.ScoreEntry{
		{Rank: 1, UserID: "u1", DisplayName: "Ada", Wins: 4, Points: 900},
		{Rank: 2, UserID: "u2", DisplayName: "Bo", Wins: 2, Points: 450},
	}
	store.On("CurrentSeason", mock.Anything, mock.Anything).Return(autumn, nil).Once()
	store.On("TopScores", mock.Anything, autumn.ID, 10).Return(entries, nil).Twice()

	svc := NewService(store, clock)
	ctx := context.Background()

	lb, err := svc.Leaderboard(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, autumn.ID, lb.Season.ID)
	if diff := cmp.Diff(entries, lb.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	_, err = svc.Leaderboard(ctx, 10)
	require.NoError(t, err)

	// scores expire after a minute, the season does not
	clock.Advance(61 * time.Second)
	_, err = svc.Leaderboard(ctx, 10)
	require.NoError(t, err)

	store.AssertExpectations(t)
}

func TestService_ClampsLimit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start.Add(time.Hour))
	store := &MockStore{}
	autumn := season(uuid.New(), start, 24*time.Hour)
	store.On("CurrentSeason", mock.Anything, mock.Anything).Return(autumn, nil)
	store.On("TopScores", mock.Anything, autumn.ID, MaxLimit).Return([]models.ScoreEntry{}, nil).Once()

	_, err := NewService(store, clock).Leaderboard(context.Background(), 5000)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestService_ReloadsEndedSeason(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start.Add(time.Minute))
	store := &MockStore{}
	first := season(uuid.New(), start, 2*time.Minute)
	next := season(uuid.New(), start.Add(2*time.Minute), time.Hour)
	store.On("CurrentSeason", mock.Anything, mock.Anything).Return(first, nil).Once()
	store.On("CurrentSeason", mock.Anything, mock.Anything).Return(next, nil).Once()
	store.On("TopScores", mock.Anything, mock.Anything, DefaultLimit).Return([]models.ScoreEntry{}, nil)

	svc := NewService(store, clock)
	lb, err := svc.Leaderboard(context.Background(), DefaultLimit)
	require.NoError(t, err)
	assert.Equal(t, first.ID, lb.Season.ID)

	clock.Advance(2 * time.Minute)
	lb, err = svc.Leaderboard(context.Background(), DefaultLimit)
	require.NoError(t, err)
	assert.Equal(t, next.ID, lb.Season.ID)
}

func TestService_PropagatesErrors(t *testing.T) {
	store := &MockStore{}
	store.On("CurrentSeason", mock.Anything, mock.Anything).Return(models.Season{}, ErrNoSeason)

	_, err := NewService(store, clockwork.NewFakeClockAt(start)).Leaderboard(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNoSeason)

	store = &MockStore{}
	autumn := season(uuid.New(), start, time.Hour)
	boom := errors.New("pool closed")
	store.On("CurrentSeason", mock.Anything, mock.Anything).Return(autumn, nil)
	store.On("TopScores", mock.Anything, autumn.ID, 5).Return(nil, boom)

	_, err = NewService(store, clockwork.NewFakeClockAt(start.Add(time.Minute))).Leaderboard(context.Background(), 5)
	assert.ErrorIs(t, err, boom)
}
