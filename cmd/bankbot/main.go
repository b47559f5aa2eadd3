package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/boddenberg/bankbot-go/internal/chat/flow"
	chatport "github.com/boddenberg/bankbot-go/internal/chat/port"
	chatservice "github.com/boddenberg/bankbot-go/internal/chat/service"
	"github.com/boddenberg/bankbot-go/internal/chat/session"
	"github.com/boddenberg/bankbot-go/internal/config"
	"github.com/boddenberg/bankbot-go/internal/handler"
	"github.com/boddenberg/bankbot-go/internal/infra/observability"
	"github.com/boddenberg/bankbot-go/internal/infra/postgres"
	"github.com/boddenberg/bankbot-go/internal/infra/resilience"
	"github.com/boddenberg/bankbot-go/internal/infra/sqlite"
	"github.com/boddenberg/bankbot-go/internal/port"
	"github.com/boddenberg/bankbot-go/internal/service"
)

// ledgerBackend is a LedgerStore that owns resources to release on exit.
type ledgerBackend interface {
	port.LedgerStore
	io.Closer
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("session_backend", cfg.SessionBackend),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("otel_enabled", cfg.OTelEnabled),
		zap.Bool("seed_sample_accounts", cfg.SeedSampleAccounts),
	)
	if cfg.UsesDevSecret() {
		logger.Warn("SESSION_TOKEN_SECRET not set, using the development secret")
	}

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.TracingEndpoint(), "bankbot")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Ledger store ---
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	backend, err := openLedgerStore(startupCtx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open ledger store", zap.Error(err))
	}
	defer backend.Close()

	if cfg.SeedSampleAccounts {
		if err := service.SeedSampleAccounts(startupCtx, backend, logger); err != nil {
			logger.Fatal("failed to seed sample accounts", zap.Error(err))
		}
	}

	// --- Resilience ---
	cb := resilience.NewCircuitBreaker("ledger-store", resilience.IsStorageFailure,
		func(name string, from, to gobreaker.State) {
			metrics.IncrBreakerTransition(name, to.String())
			logger.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		})
	store := resilience.NewBreakerStore(backend, cb, cfg.MaxConcurrency)

	// --- Services ---
	ledger := service.NewLedgerService(store, metrics, logger,
		service.WithRetry(resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
		}),
	)

	checks := map[string]handler.Pinger{"ledger": store}

	sessions, closeSessions, err := openSessionStore(startupCtx, cfg, logger, checks)
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}
	defer closeSessions()

	engine := flow.NewEngine(sessions, ledger, metrics, logger, flow.WithLockTimeout(cfg.SessionLockTimeout))
	tokens := chatservice.NewSessionTokens(cfg.SessionTokenSecret, cfg.SessionTokenTTL)
	chatSvc := chatservice.NewChatService(engine, ledger, tokens, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(ledger, chatSvc, checks, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func openLedgerStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ledgerBackend, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, postgres.Config{
			DSN:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnLifetime,
		}, logger)
	default:
		return sqlite.Open(cfg.SQLitePath, logger)
	}
}

// openSessionStore builds the configured session backend. Redis is added to
// the health checks.
func openSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, checks map[string]handler.Pinger) (chatport.SessionStore, func(), error) {
	if cfg.SessionBackend != config.SessionRedis {
		mem := session.NewMemory(cfg.SessionTTL)
		logger.Info("using in-memory session store")
		return mem, func() { _ = mem.Close() }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := session.NewRedis(client, cfg.SessionTTL, logger)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	checks["redis"] = store

	logger.Info("using redis session store", zap.String("addr", cfg.RedisAddr))
	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}, nil
}
