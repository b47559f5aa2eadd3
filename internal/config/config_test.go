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
	for _, key := range []string{"PORT", "DB_DRIVER", "SESSION_BACKEND", "SESSION_TTL", "SEED_SAMPLE_ACCOUNTS", "OTEL_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, SessionMemory, cfg.SessionBackend)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.SeedSampleAccounts)
	assert.Empty(t, cfg.TracingEndpoint())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://bankbot@localhost/bankbot")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("SESSION_TTL", "10m")
	t.Setenv("SEED_SAMPLE_ACCOUNTS", "false")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, SessionRedis, cfg.SessionBackend)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.SeedSampleAccounts)
	assert.Equal(t, "collector:4317", cfg.TracingEndpoint())
	assert.Equal(t, 3, cfg.MaxRetries, "invalid values fall back to defaults")
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"postgres without url", func(c *Config) { c.DBDriver = DriverPostgres; c.DatabaseURL = "" }},
		{"unknown session backend", func(c *Config) { c.SessionBackend = "etcd" }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"empty secret", func(c *Config) { c.SessionTokenSecret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BANKBOT_TEST_A=from-file\nBANKBOT_TEST_B=\"quoted\"\n"), 0o600))
	t.Setenv("BANKBOT_TEST_A", "from-env")
	t.Setenv("BANKBOT_TEST_B", "")
	require.NoError(t, os.Unsetenv("BANKBOT_TEST_B"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("BANKBOT_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("BANKBOT_TEST_B"))
	t.Cleanup(func() { _ = os.Unsetenv("BANKBOT_TEST_B") })
}
