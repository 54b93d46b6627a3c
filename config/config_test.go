package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.API.TimeoutSeconds)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Budget.Enabled())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flux.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://api.example.com
  partner: acme
budget:
  max_per_request: "1000000"
  max_per_day: "50000000"
  daily_reset_hour: 4
redis:
  enabled: true
  host: redis.internal
  port: 6380
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, "acme", cfg.API.Partner)
	assert.True(t, cfg.Budget.Enabled())
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())

	fb := cfg.Budget.ToFlux()
	assert.Equal(t, "1000000", fb.MaxPerRequest)
	assert.Equal(t, "50000000", fb.MaxPerDay)
	assert.Equal(t, 4, fb.DailyResetHour)
}

func TestClientOptions(t *testing.T) {
	cfg := &Config{
		API:    APIConfig{Partner: "acme", TimeoutSeconds: 30},
		Budget: BudgetConfig{MaxPerDay: "1000"},
	}
	assert.Len(t, cfg.ClientOptions(), 3)

	bare := &Config{API: APIConfig{TimeoutSeconds: 30}}
	assert.Len(t, bare.ClientOptions(), 1)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FLUX_API_BASE_URL", "https://env.example.com")
	t.Setenv("FLUX_BUDGET_MAX_PER_DAY", "777")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, "777", cfg.Budget.MaxPerDay)
	assert.True(t, cfg.Budget.Enabled())
}
