package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("testdata/nonexistent.yaml")
	require.Error(t, err, "an explicitly named but missing config file must error")

	cfg, err = Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Equal(t, "memory", cfg.Adapter.Driver)
	require.Equal(t, 3, cfg.Retry.Attempts)
	require.Equal(t, 50*time.Millisecond, cfg.Retry.BackoffBase)
	require.Equal(t, 2*time.Second, cfg.Retry.BackoffMax)
	require.Equal(t, 30*time.Second, cfg.TTL.Default)
	require.True(t, cfg.TTL.ShouldRemoveExpiredKeys)
	require.Equal(t, "info", cfg.Logging.Level)
	require.False(t, cfg.Metrics.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WARDEN_ADAPTER_DRIVER", "redis")
	t.Setenv("WARDEN_ADAPTER_REDIS_HOST", "redis.internal")
	t.Setenv("WARDEN_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Adapter.Driver)
	require.Equal(t, "redis.internal", cfg.Adapter.Redis.Host)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Config{Adapter: AdapterConfig{Driver: "mongo"}, Logging: LoggingConfig{Level: "info"}}
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresPostgresFields(t *testing.T) {
	cfg := Config{
		Adapter: AdapterConfig{Driver: "postgres", Postgres: PostgresConfig{Host: "", Database: ""}},
		Logging: LoggingConfig{Level: "info"},
	}
	require.Error(t, cfg.Validate())

	cfg.Adapter.Postgres.Host = "localhost"
	require.Error(t, cfg.Validate(), "database is still missing")

	cfg.Adapter.Postgres.Database = "warden"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresSQLitePath(t *testing.T) {
	cfg := Config{
		Adapter: AdapterConfig{Driver: "sqlite", SQLite: SQLiteConfig{Path: ""}},
		Logging: LoggingConfig{Level: "info"},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeRetryAttempts(t *testing.T) {
	cfg := Config{
		Adapter: AdapterConfig{Driver: "memory"},
		Retry:   RetryConfig{Attempts: -1},
		Logging: LoggingConfig{Level: "info"},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLoggingLevel(t *testing.T) {
	cfg := Config{
		Adapter: AdapterConfig{Driver: "memory"},
		Logging: LoggingConfig{Level: "verbose"},
	}
	require.Error(t, cfg.Validate())
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	require.Panics(t, func() {
		MustLoad("testdata/nonexistent.yaml")
	})
}
