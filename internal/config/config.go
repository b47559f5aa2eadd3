package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage and session backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SessionMemory = "memory"
	SessionRedis  = "redis"
)

const devTokenSecret = "bankbot-default-dev-secret-change-me"

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Ledger store
	DBDriver       string
	SQLitePath     string
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnLifetime time.Duration

	// Sessions
	SessionBackend     string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SessionTTL         time.Duration
	SessionLockTimeout time.Duration

	// Session tokens
	SessionTokenSecret string
	SessionTokenTTL    time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Observability
	OTelEnabled  bool
	OTLPEndpoint string

	SeedSampleAccounts bool
}

// LoadDotEnv reads a .env file into the environment. Variables that are
// already set win over the file.
func LoadDotEnv(path string) error {
	return godotenv.Load(path)
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		SQLitePath:     getEnv("SQLITE_PATH", "bankbot.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),

		SessionBackend:     strings.ToLower(getEnv("SESSION_BACKEND", SessionMemory)),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		SessionTTL:         getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionLockTimeout: getEnvDuration("SESSION_LOCK_TIMEOUT", 5*time.Second),

		SessionTokenSecret: getEnv("SESSION_TOKEN_SECRET", devTokenSecret),
		SessionTokenTTL:    getEnvDuration("SESSION_TOKEN_TTL", 24*time.Hour),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 50*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SeedSampleAccounts: getEnvBool("SEED_SAMPLE_ACCOUNTS", true),
	}
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q (want sqlite or postgres)", c.DBDriver))
	}

	switch c.SessionBackend {
	case SessionMemory:
	case SessionRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis session backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_BACKEND %q (want memory or redis)", c.SessionBackend))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", c.Port))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.SessionTokenTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TOKEN_TTL must be positive"))
	}
	if c.SessionTokenSecret == "" {
		errs = append(errs, errors.New("SESSION_TOKEN_SECRET must not be empty"))
	}

	return errors.Join(errs...)
}

// UsesDevSecret reports whether session tokens are signed with the built-in
// development secret.
func (c *Config) UsesDevSecret() bool {
	return c.SessionTokenSecret == devTokenSecret
}

// TracingEndpoint is the OTLP endpoint to export to, or "" when tracing is
// disabled.
func (c *Config) TracingEndpoint() string {
	if !c.OTelEnabled {
		return ""
	}
	return c.OTLPEndpoint
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
