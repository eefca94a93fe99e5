// Package config loads the toolkit's runtime configuration from a YAML
// file and environment variables, mirroring the layering the teacher
// server uses for its own configuration (file defaults, overridden by
// WARDEN_-prefixed env vars).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration surface a provider.Provider consumes
// to construct ready-to-use cache/lock/sharedlock handles.
type Config struct {
	Adapter   AdapterConfig   `mapstructure:"adapter"`
	Retry     RetryConfig     `mapstructure:"retry"`
	TTL       TTLConfig       `mapstructure:"ttl"`
	Blocking  BlockingConfig  `mapstructure:"blocking"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AdapterConfig selects and configures the storage backend. Driver is
// one of "memory", "postgres", "sqlite", "redis".
type AdapterConfig struct {
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres").
	Postgres PostgresConfig `mapstructure:"postgres"`

	// SQLite settings (used when Driver is "sqlite").
	SQLite SQLiteConfig `mapstructure:"sqlite"`

	// Redis settings (used when Driver is "redis").
	Redis RedisConfig `mapstructure:"redis"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// SQLiteConfig holds embedded SQLite settings.
type SQLiteConfig struct {
	Path        string `mapstructure:"path"`
	JournalMode string `mapstructure:"journal_mode"`
	BusyTimeout int    `mapstructure:"busy_timeout"`
}

// RedisConfig holds Redis connection settings, used both by the Redis
// adapter and by event/redisbus.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address in host:port form.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RetryConfig governs the retrypolicy wrapper a provider wraps around
// adapter calls.
type RetryConfig struct {
	Attempts      int           `mapstructure:"attempts"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
}

// TTLConfig governs default expirations and the background sweeper.
type TTLConfig struct {
	Default                    time.Duration `mapstructure:"default"`
	ExpiredKeysRemovalInterval time.Duration `mapstructure:"expired_keys_removal_interval"`
	ShouldRemoveExpiredKeys    bool          `mapstructure:"should_remove_expired_keys"`
}

// BlockingConfig holds blocking-acquire defaults loaded from
// configuration. Provider does not pass them to the handles it builds;
// Lock.AcquireBlocking takes its window from the BlockingOptions of each
// call.
type BlockingConfig struct {
	DefaultTime     time.Duration `mapstructure:"default_time"`
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	DefaultRefresh  time.Duration `mapstructure:"default_refresh"`
}

// LoggingConfig holds structured-logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig governs event/metrics's optional Prometheus export.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from configPath (or the default search
// path, if empty) and WARDEN_-prefixed environment variables, which
// take precedence over file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("warden")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/warden")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("adapter.driver", "memory")

	v.SetDefault("adapter.postgres.host", "localhost")
	v.SetDefault("adapter.postgres.port", 5432)
	v.SetDefault("adapter.postgres.user", "warden")
	v.SetDefault("adapter.postgres.password", "")
	v.SetDefault("adapter.postgres.database", "warden")
	v.SetDefault("adapter.postgres.ssl_mode", "prefer")
	v.SetDefault("adapter.postgres.max_open_conns", 25)
	v.SetDefault("adapter.postgres.max_idle_conns", 5)
	v.SetDefault("adapter.postgres.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("adapter.sqlite.path", "./data/warden.db")
	v.SetDefault("adapter.sqlite.journal_mode", "WAL")
	v.SetDefault("adapter.sqlite.busy_timeout", 5000)

	v.SetDefault("adapter.redis.host", "localhost")
	v.SetDefault("adapter.redis.port", 6379)
	v.SetDefault("adapter.redis.password", "")
	v.SetDefault("adapter.redis.db", 0)
	v.SetDefault("adapter.redis.pool_size", 10)
	v.SetDefault("adapter.redis.dial_timeout", 5*time.Second)

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.backoff_base", 50*time.Millisecond)
	v.SetDefault("retry.backoff_max", 2*time.Second)

	v.SetDefault("ttl.default", 30*time.Second)
	v.SetDefault("ttl.expired_keys_removal_interval", 60*time.Second)
	v.SetDefault("ttl.should_remove_expired_keys", true)

	v.SetDefault("blocking.default_time", 10*time.Second)
	v.SetDefault("blocking.default_interval", 100*time.Millisecond)
	v.SetDefault("blocking.default_refresh", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", false)
}

// Validate checks the configuration for required values and valid
// ranges.
func (c *Config) Validate() error {
	validDrivers := map[string]bool{"memory": true, "postgres": true, "sqlite": true, "redis": true}
	if !validDrivers[c.Adapter.Driver] {
		return fmt.Errorf("adapter.driver must be one of: memory, postgres, sqlite, redis")
	}

	switch c.Adapter.Driver {
	case "postgres":
		if c.Adapter.Postgres.Host == "" {
			return fmt.Errorf("adapter.postgres.host is required for postgres driver")
		}
		if c.Adapter.Postgres.Database == "" {
			return fmt.Errorf("adapter.postgres.database is required for postgres driver")
		}
	case "sqlite":
		if c.Adapter.SQLite.Path == "" {
			return fmt.Errorf("adapter.sqlite.path is required for sqlite driver")
		}
	case "redis":
		if c.Adapter.Redis.Host == "" {
			return fmt.Errorf("adapter.redis.host is required for redis driver")
		}
	}

	if c.Retry.Attempts < 0 {
		return fmt.Errorf("retry.attempts must be >= 0")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error. Useful for process
// initialization where a bad config should fail fast.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
