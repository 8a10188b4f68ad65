package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/wordparty/go/internal/assets"
	"github.com/mcdev12/wordparty/go/internal/dbconfig"
	"github.com/mcdev12/wordparty/go/internal/models"
)

type seedPlayer struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Wins        int    `json:"wins"`
	Points      int    `json:"points"`
}

type seedRoom struct {
	RoomID string           `json:"room_id"`
	State  models.GameState `json:"state"`
}

type seedData struct {
	Season  models.Season `json:"season"`
	Players []seedPlayer  `json:"players"`
	Rooms   []seedRoom    `json:"rooms"`
}

func main() {
	// 1) Load the seed snapshot, from the first argument or the embedded copy
	data := assets.Seed
	if len(os.Args) > 1 {
		var err error
		if data, err = os.ReadFile(os.Args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
			os.Exit(1)
		}
	}
	var seed seedData
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, assets.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	// 3) Upsert and count
	var errs int

	_, err = pool.Exec(ctx, `
            INSERT INTO seasons (id, name, starts_at, ends_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO UPDATE
            SET name = EXCLUDED.name, starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at
        `,
		seed.Season.ID, seed.Season.Name, seed.Season.StartsAt, seed.Season.EndsAt,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error upserting season %s: %v\n", seed.Season.ID, err)
		os.Exit(1)
	}

	for _, p := range seed.Players {
		if _, err := pool.Exec(ctx, `
            INSERT INTO users (id, display_name) VALUES ($1, $2)
            ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name
        `, p.ID, p.DisplayName); err != nil {
			fmt.Fprintf(os.Stderr, "error upserting user %s: %v\n", p.ID, err)
			errs++
			continue
		}
		if _, err := pool.Exec(ctx, `
            INSERT INTO season_scores (season_id, user_id, wins, points) VALUES ($1, $2, $3, $4)
            ON CONFLICT (season_id, user_id) DO UPDATE
            SET wins = EXCLUDED.wins, points = EXCLUDED.points
        `, seed.Season.ID, p.ID, p.Wins, p.Points); err != nil {
			fmt.Fprintf(os.Stderr, "error upserting score for %s: %v\n", p.ID, err)
			errs++
		}
	}

	// Rooms start their current phase now so a watching display counts down.
	now := time.Now()
	for _, r := range seed.Rooms {
		r.State.PhaseStartTime = now.UnixMilli()
		r.State.UpdatedAt = now.UnixMilli()
		state, err := json.Marshal(r.State)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error encoding room %s: %v\n", r.RoomID, err)
			errs++
			continue
		}
		if _, err := pool.Exec(ctx, `
            INSERT INTO game_states (room_id, state, updated_at) VALUES ($1, $2, $3)
            ON CONFLICT (room_id) DO UPDATE
            SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
        `, r.RoomID, state, now); err != nil {
			fmt.Fprintf(os.Stderr, "error upserting room %s: %v\n", r.RoomID, err)
			errs++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Seed complete: season %q, %d players, %d rooms, %d errors\n",
		seed.Season.Name, len(seed.Players), len(seed.Rooms), errs,
	)
}
