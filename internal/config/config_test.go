package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "RELAY", "DEDUPE_TTL", "CSRF_ENABLED", "DATABASE_URL", "ALLOWED_ORIGINS", "TEAM_NUMBER", "SEASON"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Addr())
	assert.Equal(t, "memory", cfg.DBDriver)
	assert.Equal(t, "none", cfg.Relay)
	assert.Equal(t, 10*time.Minute, cfg.DedupeTTL)
	assert.True(t, cfg.CSRFEnabled)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, 2073, cfg.HomeTeam)
	assert.Equal(t, 2025, cfg.Season)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DEDUPE_TTL", "30s")
	t.Setenv("CSRF_ENABLED", "false")
	t.Setenv("RELAY", "nats")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9001", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.DedupeTTL)
	assert.False(t, cfg.CSRFEnabled)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":       {"DB_DRIVER": "mongo"},
		"postgres without url": {"DB_DRIVER": "postgres", "DATABASE_URL": ""},
		"pg relay without url": {"RELAY": "postgres", "DATABASE_URL": ""},
		"unknown relay":        {"RELAY": "kafka"},
		"bad ttl":              {"DEDUPE_TTL": "soon"},
		"bad team number":      {"TEAM_NUMBER": "frc2073"},
		"negative team number": {"TEAM_NUMBER": "-1"},
		"bad season":           {"SEASON": "next"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DB_DRIVER", "")
			t.Setenv("RELAY", "")
			t.Setenv("DEDUPE_TTL", "")
			t.Setenv("TEAM_NUMBER", "")
			t.Setenv("SEASON", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
