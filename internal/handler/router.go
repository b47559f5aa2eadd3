package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	chathandler "github.com/boddenberg/bankbot-go/internal/chat/handler"
	chatservice "github.com/boddenberg/bankbot-go/internal/chat/service"
	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/infra/observability"
	"github.com/boddenberg/bankbot-go/internal/port"
)

var tracer = otel.Tracer("handler")

// healthCheckTimeout bounds one dependency ping in /healthz.
const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency /healthz can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates the HTTP router with all routes and middleware. A nil
// ledger or chat service turns the matching routes into 503 responses.
// checks are probed by /healthz, keyed by dependency name.
func NewRouter(ledger port.Ledger, chatSvc *chatservice.ChatService, checks map[string]Pinger, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(checks))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Chat sessions
		// =============================================
		r.Route("/chat/sessions", func(r chi.Router) {
			if chatSvc == nil {
				r.Handle("/*", unavailableHandler("chat service unavailable"))
				return
			}
			r.Post("/", chathandler.StartSessionHandler(chatSvc, logger))

			auth := SessionAuthMiddleware(chatSvc.Tokens(), logger)
			r.With(auth).Post("/{sessionId}/messages", chathandler.MessageHandler(chatSvc, metrics, logger))
			r.With(auth).Post("/{sessionId}/end", chathandler.EndSessionHandler(chatSvc, logger))
		})

		// =============================================
		// 2. Ledger
		// =============================================
		r.Group(func(r chi.Router) {
			if ledger == nil {
				r.Handle("/accounts", unavailableHandler("ledger unavailable"))
				r.Handle("/accounts/*", unavailableHandler("ledger unavailable"))
				r.Handle("/transfers", unavailableHandler("ledger unavailable"))
				return
			}
			r.Post("/accounts", createAccountHandler(ledger, logger))
			r.Get("/accounts/{accountNumber}/balance", balanceHandler(ledger, logger))
			r.Get("/accounts/{accountNumber}/transactions", historyHandler(ledger, logger))
			r.Get("/accounts/{accountNumber}/transactions/last", lastTransactionHandler(ledger, logger))
			r.Post("/accounts/{accountNumber}/deposit", depositHandler(ledger, logger))
			r.Post("/accounts/{accountNumber}/withdraw", withdrawHandler(ledger, logger))
			r.Post("/transfers", transferHandler(ledger, logger))
		})
	})

	return r
}

// ============================================================
// Health & probes
// ============================================================

func healthzHandler(checks map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "bankbot-api", Status: domain.HealthHealthy, LastChecked: now},
		}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			start := time.Now()
			err := checks[name].Ping(ctx)
			cancel()

			svc := domain.ServiceHealth{
				Name:        name,
				Status:      domain.HealthHealthy,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				svc.Status = domain.HealthUnhealthy
				svc.Error = err.Error()
			}
			services = append(services, svc)
		}

		status := http.StatusOK
		overall := domain.Overall(services)
		if overall == domain.HealthUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func unavailableHandler(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, msg)
	}
}
