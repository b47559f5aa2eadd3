package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/boddenberg/bankbot-go/internal/infra/observability"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := observability.NewLogger(tt.level)
			assert.Equal(t, tt.want, logger.Level())
		})
	}
}

func TestZapLoggerMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := chi.NewRouter()
	r.Use(observability.ZapLoggerMiddleware(zap.New(core)))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/v1/accounts/{accountNumber}/balance", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Post("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	tests := []struct {
		method string
		path   string
		want   zapcore.Level
	}{
		{http.MethodGet, "/healthz", zapcore.DebugLevel},
		{http.MethodGet, "/v1/accounts/ACC999/balance", zapcore.WarnLevel},
		{http.MethodPost, "/v1/transfers", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, len(tests))
	for i, tt := range tests {
		assert.Equal(t, tt.want, entries[i].Level, tt.path)
		assert.Equal(t, tt.path, entries[i].ContextMap()["path"])
	}
	assert.Equal(t, "/v1/accounts/{accountNumber}/balance", entries[1].ContextMap()["route"])
}
