// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"goride/internal/planner"
)

// Config collects every tunable the binary reads at startup. All values come
// from GORIDE_* environment variables with working defaults.
type Config struct {
	// DBPath is the SQLite database file, or ":memory:".
	DBPath string
	// FeedDir is the directory holding schedule feed files for import.
	FeedDir string
	// ListenAddr is the HTTP bind address.
	ListenAddr string
	// UTCOffsetMinutes is the agency's fixed offset from UTC. Default is
	// UTC+3.
	UTCOffsetMinutes int
	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string

	Search planner.Options
}

func defaults() Config {
	return Config{
		DBPath:           "goride.db",
		FeedDir:          "feed",
		ListenAddr:       ":8080",
		UTCOffsetMinutes: 180,
		LogLevel:         "info",
		Search:           planner.DefaultOptions(),
	}
}

// Load reads the optional .env file and the process environment. A missing
// .env file is not an error; a malformed numeric variable is.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	cfg.DBPath = envString("GORIDE_DB_PATH", cfg.DBPath)
	cfg.FeedDir = envString("GORIDE_FEED_DIR", cfg.FeedDir)
	cfg.ListenAddr = envString("GORIDE_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = envString("GORIDE_LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.UTCOffsetMinutes, err = envInt("GORIDE_UTC_OFFSET_MINUTES", cfg.UTCOffsetMinutes); err != nil {
		return cfg, err
	}
	if cfg.Search.WalkCeilingMeters, err = envFloat("GORIDE_WALK_CEILING_METERS", cfg.Search.WalkCeilingMeters); err != nil {
		return cfg, err
	}
	if cfg.Search.SearchRadiusMeters, err = envFloat("GORIDE_SEARCH_RADIUS_METERS", cfg.Search.SearchRadiusMeters); err != nil {
		return cfg, err
	}
	if cfg.Search.TransferRadiusMeters, err = envFloat("GORIDE_TRANSFER_RADIUS_METERS", cfg.Search.TransferRadiusMeters); err != nil {
		return cfg, err
	}
	if cfg.Search.MaxRounds, err = envInt("GORIDE_MAX_ROUNDS", cfg.Search.MaxRounds); err != nil {
		return cfg, err
	}
	if cfg.Search.MaxResults, err = envInt("GORIDE_MAX_RESULTS", cfg.Search.MaxResults); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SlogLevel maps the configured level name, defaulting to info on an unknown
// name.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
