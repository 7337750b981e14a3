package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCENARIO_DATABASE_URL", "postgres://localhost:5432/scenario?sslmode=disable")
	t.Setenv("SCENARIO_PORT", "9090")
	t.Setenv("SCENARIO_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://localhost:5432/scenario?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "migrations", cfg.MigrationsPath)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCENARIO_DATABASE_URL", "postgres://localhost:5432/scenario")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("SCENARIO_DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}
