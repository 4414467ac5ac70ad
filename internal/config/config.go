package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings, read from the environment and an
// optional .env file.
type Config struct {
	Port     string
	LogLevel string

	// DBDriver is memory, sqlite or postgres.
	DBDriver    string
	DatabaseURL string
	SQLiteFile  string

	RedisURL  string
	DedupeTTL time.Duration

	// Relay is none, postgres or nats.
	Relay       string
	NATSURL     string
	NATSSubject string

	TBAAuthKey string
	TBABaseURL string

	// HomeTeam and Season pick the events offered by /teams/events/.
	HomeTeam int
	Season   int

	CSRFEnabled    bool
	AllowedOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	ttl, err := time.ParseDuration(getEnv("DEDUPE_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("DEDUPE_TTL: %w", err)
	}

	homeTeam, err := strconv.Atoi(getEnv("TEAM_NUMBER", "2073"))
	if err != nil {
		return nil, fmt.Errorf("TEAM_NUMBER: %w", err)
	}
	season, err := strconv.Atoi(getEnv("SEASON", "2025"))
	if err != nil {
		return nil, fmt.Errorf("SEASON: %w", err)
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", "memory")),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SQLiteFile:     getEnv("SQLITE_FILE", "scouting.db"),
		RedisURL:       getEnv("REDIS_URL", ""),
		DedupeTTL:      ttl,
		Relay:          strings.ToLower(getEnv("RELAY", "none")),
		NATSURL:        getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NATSSubject:    getEnv("NATS_SUBJECT", "scouting.picklist"),
		TBAAuthKey:     getEnv("TBA_AUTH_KEY", ""),
		TBABaseURL:     getEnv("TBA_BASE_URL", "https://www.thebluealliance.com/api/v3"),
		HomeTeam:       homeTeam,
		Season:         season,
		CSRFEnabled:    getBoolEnv("CSRF_ENABLED", true),
		AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}

	if c.HomeTeam <= 0 {
		return fmt.Errorf("TEAM_NUMBER must be positive, got %d", c.HomeTeam)
	}

	switch c.Relay {
	case "none", "nats":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("RELAY=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown RELAY %q", c.Relay)
	}
	return nil
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
