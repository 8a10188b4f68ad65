package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/cache"
	"github.com/mcdev12/wordparty/go/internal/models"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	seasonTTL = 5 * time.Minute
	scoresTTL = time.Minute
)

// Store defines what the service needs from the repository
type Store interface {
	CurrentSeason(ctx context.Context, now time.Time) (models.Season, error)
	TopScores(ctx context.Context, seasonID uuid.UUID, limit int) ([]models.ScoreEntry, error)
}

// Leaderboard is the ranked view of a season.
type Leaderboard struct {
	Season  models.Season       `json:"season"`
	Entries []models.ScoreEntry `json:"entries"`
}

type scoresKey struct {
	season uuid.UUID
	limit  int
}

// Service serves leaderboards from short-lived caches in front of the store.
type Service struct {
	store  Store
	clock  clockwork.Clock
	season *cache.TTL[string, models.Season]
	scores *cache.TTL[scoresKey, []models.ScoreEntry]
}

// NewService creates a leaderboard service. A nil clock uses the real clock.
func NewService(store Store, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:  store,
		clock:  clock,
		season: cache.NewTTL[string, models.Season](seasonTTL, clock),
		scores: cache.NewTTL[scoresKey, []models.ScoreEntry](scoresTTL, clock),
	}
}

// Leaderboard returns the top limit entries of the current season. Limits
// outside 1..MaxLimit fall back to DefaultLimit or MaxLimit.
func (s *Service) Leaderboard(ctx context.Context, limit int) (Leaderboard, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	season, err := s.currentSeason(ctx)
	if err != nil {
		return Leaderboard{}, fmt.Errorf("load season: %w", err)
	}

	entries, err := s.scores.GetOrLoad(ctx, scoresKey{season: season.ID, limit: limit}, func(ctx context.Context) ([]models.ScoreEntry, error) {
		return s.store.TopScores(ctx, season.ID, limit)
	})
	if err != nil {
		return Leaderboard{}, fmt.Errorf("load scores for season %s: %w", season.ID, err)
	}

	return Leaderboard{Season: season, Entries: entries}, nil
}

func (s *Service) currentSeason(ctx context.Context) (models.Season, error) {
	load := func(ctx context.Context) (models.Season, error) {
		return s.store.CurrentSeason(ctx, s.clock.Now())
	}
	season, err := s.season.GetOrLoad(ctx, "current", load)
	if err != nil || season.Active(s.clock.Now()) {
		return season, err
	}

	// the cached season ended since it was loaded
	log.Debug().Str("season_id", season.ID.String()).Msg("cached season ended, reloading")
	s.season.Invalidate("current")
	return s.season.GetOrLoad(ctx, "current", load)
}
