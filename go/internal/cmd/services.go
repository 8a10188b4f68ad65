package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/backend"
	"github.com/mcdev12/wordparty/go/internal/dbconfig"
	"github.com/mcdev12/wordparty/go/internal/gateway"
	"github.com/mcdev12/wordparty/go/internal/leaderboard"
	"github.com/mcdev12/wordparty/go/internal/models"
	"github.com/mcdev12/wordparty/go/internal/room"
	"github.com/mcdev12/wordparty/go/internal/snapshot"
)

type Services struct {
	Rooms   *room.Manager
	Gateway *gateway.Service
	Health  *HealthChecker

	// background loops that run until the root context ends
	loops   []func(ctx context.Context) error
	closers []func()
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	s := &Services{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	// Wire up dependency injection chain
	// Snapshot source → Backend client → Room sessions → Gateway
	var (
		db  *sql.DB
		err error
	)
	dbCfg := dbconfig.NewConfigFromEnv()
	if config.usesDatabase() {
		db, err = setupDatabase(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { db.Close() })
	}

	health := &HealthChecker{source: config.Source.Kind, db: db}

	var (
		stream snapshot.Stream
		client backend.Client
	)
	switch config.Source.Kind {
	case SourceMemory:
		feed := snapshot.NewFeed()
		s.closers = append(s.closers, feed.Close)
		local := backend.NewLocalBackend(feed, config.Demo.Settings, config.Demo.Prompts, nil)
		players := demoPlayers(config.UserID, config.Demo.Players)
		for _, roomID := range config.Rooms {
			local.CreateRoom(roomID, players)
		}
		stream, client = feed, local

	case SourceNATS:
		jsCfg := snapshot.DefaultJetStreamConfig()
		jsCfg.URL = config.Source.NATS.URL
		if config.Source.NATS.Stream != "" {
			jsCfg.StreamName = config.Source.NATS.Stream
		}
		if config.Source.NATS.SubjectPrefix != "" {
			jsCfg.SubjectPrefix = config.Source.NATS.SubjectPrefix
		}
		source, err := snapshot.NewJetStreamSource(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream source: %w", err)
		}
		s.closers = append(s.closers, func() {
			if err := source.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close JetStream source")
			}
		})
		health.nats = source
		stream, client = source, newConnectClient(config)

	case SourcePostgres:
		pgCfg := snapshot.DefaultPostgresConfig()
		pgCfg.DatabaseURL = dbCfg.DSN()
		if config.Source.Postgres.NotifyChannel != "" {
			pgCfg.NotifyChannel = config.Source.Postgres.NotifyChannel
		}
		if config.Source.Postgres.FallbackInterval > 0 {
			pgCfg.FallbackInterval = config.Source.Postgres.FallbackInterval
		}
		source, err := snapshot.NewPostgresSource(db, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres source: %w", err)
		}
		s.loops = append(s.loops, source.Start)
		stream, client = source, newConnectClient(config)
	}

	s.Rooms = room.NewManager(config.UserID, stream, client, config.timerConfig())

	gwCfg := gateway.DefaultConfig()
	gwCfg.AutoWatch = config.HTTP.AutoWatch
	gwCfg.MaxWatchedRooms = config.HTTP.MaxWatched
	if config.Leaderboard.Enabled {
		pool, err := setupPool(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		s.Gateway = gateway.NewService(gwCfg, s.Rooms, newLeaderboard(pool))
	} else {
		s.Gateway = gateway.NewService(gwCfg, s.Rooms, nil)
	}

	health.rooms = s.Rooms.Rooms
	health.gateway = s.Gateway
	s.Health = health

	ok = true
	return s, nil
}

func newConnectClient(config *Config) *backend.ConnectClient {
	return backend.NewConnectClient(nil, backend.Config{
		BaseURL:   config.Backend.BaseURL,
		AuthToken: config.Backend.AuthToken,
		Timeout:   config.Backend.Timeout,
		UseGRPC:   config.Backend.GRPC,
	})
}

func newLeaderboard(pool *pgxpool.Pool) *leaderboard.Service {
	return leaderboard.NewService(leaderboard.NewRepository(pool), nil)
}

// demoPlayers seats userID as the host so the local player can submit and
// vote in memory mode. The other names get random IDs.
func demoPlayers(userID string, names []string) []models.Player {
	players := make([]models.Player, 0, len(names))
	for i, name := range names {
		id := uuid.NewString()
		if i == 0 {
			id = userID
		}
		players = append(players, models.Player{
			ID:          id,
			DisplayName: name,
			IsHost:      i == 0,
		})
	}
	return players
}

// Close releases everything setupServices acquired, newest first.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
