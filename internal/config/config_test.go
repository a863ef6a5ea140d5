package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "GHS", cfg.Engine.BaseCurrency)
	assert.Equal(t, []string{"USD", "EUR", "GBP"}, cfg.Engine.DefaultTargets)
	assert.Equal(t, 30*time.Minute, cfg.Cache.SuccessTTL)
	assert.Equal(t, time.Minute, cfg.Cache.FailureTTL)
	assert.Equal(t, "@every 30m", cfg.Refresh.Schedule)
	assert.Equal(t, "EUR", cfg.Providers.FixerPivot)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("RATEHUB_BASE_CURRENCY", "ngn")
	t.Setenv("RATEHUB_PROVIDERS", "fixer,bog")
	t.Setenv("RATEHUB_CACHE_DRIVER", "redis")
	t.Setenv("RATEHUB_ALERT_EMAIL_TO", "a@example.com,b@example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "NGN", cfg.Engine.BaseCurrency)
	assert.Equal(t, []string{"fixer", "bog"}, cfg.Providers.Order)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Len(t, cfg.Alert.EmailTo, 2)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_PATH", "")
	// Registered so the variable is unset again after the test.
	t.Setenv("RATEHUB_FIXER_KEY", "")
	os.Unsetenv("RATEHUB_FIXER_KEY")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RATEHUB_FIXER_KEY=from-dotenv\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Providers.FixerKey)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "ratehub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
engine:
  base_currency: USD
  default_targets: [EUR, JPY]
`), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "USD", cfg.Engine.BaseCurrency)
	assert.Equal(t, []string{"EUR", "JPY"}, cfg.Engine.DefaultTargets)
	assert.Equal(t, ":8000", cfg.HTTP.Addr, "defaults still apply")
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	t.Setenv("RATEHUB_DB_DRIVER", "mysql")
	_, err := Load()
	assert.ErrorContains(t, err, "storage driver")

	t.Setenv("RATEHUB_DB_DRIVER", "memory")
	t.Setenv("RATEHUB_CACHE_FAILURE_TTL", "2h")
	_, err = Load()
	assert.ErrorContains(t, err, "failure ttl")
}
