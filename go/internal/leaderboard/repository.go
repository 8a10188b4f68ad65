package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/wordparty/go/internal/models"
)

// ErrNoSeason is returned when no season covers the requested time.
var ErrNoSeason = errors.New("no active season")

const currentSeasonQuery = `
SELECT id, name, starts_at, ends_at
FROM seasons
WHERE starts_at <= $1 AND ends_at > $1
ORDER BY starts_at DESC
LIMIT 1`

const topScoresQuery = `
SELECT s.user_id, COALESCE(u.display_name, ''), s.wins, s.points
FROM season_scores s
LEFT JOIN users u ON u.id = s.user_id
WHERE s.season_id = $1
ORDER BY s.points DESC, s.wins DESC, s.user_id
LIMIT $2`

// Repository reads seasons and scores from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new leaderboard repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CurrentSeason returns the season active at now.
func (r *Repository) CurrentSeason(ctx context.Context, now time.Time) (models.Season, error) {
	var s models.Season
	err := r.pool.QueryRow(ctx, currentSeasonQuery, now).Scan(&s.ID, &s.Name, &s.StartsAt, &s.EndsAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Season{}, ErrNoSeason
	}
	if err != nil {
		return models.Season{}, fmt.Errorf("failed to get current season: %w", err)
	}
	return s, nil
}

// TopScores returns up to limit entries ranked by points.
func (r *Repository) TopScores(ctx context.Context, seasonID uuid.UUID, limit int) ([]models.ScoreEntry, error) {
	rows, err := r.pool.Query(ctx, topScoresQuery, seasonID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top scores: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ScoreEntry, error) {
		var e models.ScoreEntry
		err := row.Scan(&e.UserID, &e.DisplayName, &e.Wins, &e.Points)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan top scores: %w", err)
	}

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
