package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/wordparty/go/internal/game/phasetimer"
	"github.com/mcdev12/wordparty/go/internal/models"
)

// Snapshot source kinds.
const (
	SourceMemory   = "memory"
	SourceNATS     = "nats"
	SourcePostgres = "postgres"
)

type Config struct {
	LogLevel string   `yaml:"log_level"`
	UserID   string   `yaml:"user_id"`
	Rooms    []string `yaml:"rooms"`

	HTTP struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		AutoWatch      bool     `yaml:"auto_watch"`
		MaxWatched     int      `yaml:"max_watched_rooms"`
	} `yaml:"http"`

	Source struct {
		Kind string `yaml:"kind"`
		NATS struct {
			URL           string `yaml:"url"`
			Stream        string `yaml:"stream"`
			SubjectPrefix string `yaml:"subject_prefix"`
		} `yaml:"nats"`
		Postgres struct {
			NotifyChannel    string        `yaml:"notify_channel"`
			FallbackInterval time.Duration `yaml:"fallback_interval"`
		} `yaml:"postgres"`
	} `yaml:"source"`

	Backend struct {
		BaseURL   string        `yaml:"base_url"`
		AuthToken string        `yaml:"auth_token"`
		Timeout   time.Duration `yaml:"timeout"`
		GRPC      bool          `yaml:"grpc"`
	} `yaml:"backend"`

	Timer struct {
		TickInterval time.Duration `yaml:"tick_interval"`
		MaxAttempts  int           `yaml:"max_attempts"`
		Backoff      time.Duration `yaml:"backoff"`
	} `yaml:"timer"`

	Leaderboard struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"leaderboard"`

	// Demo configures the in-process backend used with the memory source.
	Demo struct {
		Settings models.RoomSettings `yaml:"settings"`
		Players  []string            `yaml:"players"`
		Prompts  []string            `yaml:"prompts"`
	} `yaml:"demo"`
}

func defaultConfig() *Config {
	var c Config
	c.LogLevel = "info"
	c.UserID = "display"
	c.Rooms = []string{"demo"}
	c.HTTP.Port = "8080"
	c.HTTP.MaxWatched = 16
	c.Source.Kind = SourceMemory
	c.Source.NATS.URL = "nats://localhost:4222"
	c.Source.NATS.Stream = "GAME_STATES"
	c.Source.NATS.SubjectPrefix = "game.state"
	c.Source.Postgres.NotifyChannel = "game_state_changed"
	c.Source.Postgres.FallbackInterval = 5 * time.Second
	c.Backend.Timeout = 10 * time.Second
	c.Timer.TickInterval = phasetimer.DefaultTickInterval
	c.Timer.MaxAttempts = phasetimer.DefaultAdvancePolicy().MaxAttempts
	c.Timer.Backoff = phasetimer.DefaultAdvancePolicy().Backoff
	c.Demo.Settings = models.RoomSettings{
		MaxPlayers:     8,
		PromptTime:     5,
		SubmissionTime: 60,
		VotingTime:     30,
		ResultsTime:    10,
		WinCondition:   models.WinCondition{Type: models.WinConditionRounds, Target: 3},
	}
	c.Demo.Players = []string{"Alice", "Bob", "Carol"}
	return &c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// loadConfig reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.UserID = getEnv("DISPLAY_USER_ID", c.UserID)
	if rooms := os.Getenv("ROOMS"); rooms != "" {
		c.Rooms = splitList(rooms)
	}
	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.HTTP.AllowedOrigins = splitList(origins)
	}
	c.HTTP.AutoWatch = getEnvAsBool("AUTO_WATCH", c.HTTP.AutoWatch)
	c.HTTP.MaxWatched = getEnvAsInt("MAX_WATCHED_ROOMS", c.HTTP.MaxWatched)
	c.Source.Kind = getEnv("SNAPSHOT_SOURCE", c.Source.Kind)
	c.Source.NATS.URL = getEnv("NATS_URL", c.Source.NATS.URL)
	c.Backend.BaseURL = getEnv("BACKEND_URL", c.Backend.BaseURL)
	c.Backend.AuthToken = getEnv("BACKEND_TOKEN", c.Backend.AuthToken)
	c.Timer.MaxAttempts = getEnvAsInt("ADVANCE_MAX_ATTEMPTS", c.Timer.MaxAttempts)
	c.Leaderboard.Enabled = getEnvAsBool("LEADERBOARD_ENABLED", c.Leaderboard.Enabled)
}

func (c *Config) validate() error {
	switch c.Source.Kind {
	case SourceMemory:
	case SourceNATS, SourcePostgres:
		if c.Backend.BaseURL == "" {
			return fmt.Errorf("backend base_url is required for %s source", c.Source.Kind)
		}
	default:
		return fmt.Errorf("unknown snapshot source %q", c.Source.Kind)
	}
	if c.UserID == "" {
		return errors.New("user_id is required")
	}
	if c.HTTP.AutoWatch && c.HTTP.MaxWatched <= 0 {
		return errors.New("max_watched_rooms must be positive when auto_watch is on")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// usesDatabase reports whether the process needs Postgres.
func (c *Config) usesDatabase() bool {
	return c.Source.Kind == SourcePostgres || c.Leaderboard.Enabled
}

func (c *Config) timerConfig() phasetimer.Config {
	cfg := phasetimer.DefaultConfig()
	if c.Timer.TickInterval > 0 {
		cfg.TickInterval = c.Timer.TickInterval
	}
	if c.Timer.MaxAttempts > 0 {
		cfg.Policy.MaxAttempts = c.Timer.MaxAttempts
	}
	if c.Timer.Backoff > 0 {
		cfg.Policy.Backoff = c.Timer.Backoff
	}
	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
