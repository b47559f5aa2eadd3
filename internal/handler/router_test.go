package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/bankbot-go/internal/chat/flow"
	"github.com/boddenberg/bankbot-go/internal/chat/service"
	"github.com/boddenberg/bankbot-go/internal/chat/session"
	"github.com/boddenberg/bankbot-go/internal/handler"
	"github.com/boddenberg/bankbot-go/internal/infra/observability"
	"github.com/boddenberg/bankbot-go/internal/infra/sqlite"
	ledgerservice "github.com/boddenberg/bankbot-go/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// newTestServer wires a full stack on a temporary SQLite ledger seeded with
// the sample accounts.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, ledgerservice.SeedSampleAccounts(context.Background(), store, logger))

	ledger := ledgerservice.NewLedgerService(store, metrics, logger)
	sessions := session.NewMemory(time.Minute)
	t.Cleanup(func() { _ = sessions.Close() })
	engine := flow.NewEngine(sessions, ledger, metrics, logger)
	chatSvc := service.NewChatService(engine, ledger, service.NewSessionTokens("test-secret", time.Hour), metrics, logger)

	return handler.NewRouter(ledger, chatSvc, map[string]handler.Pinger{"ledger": store}, metrics, logger)
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, observability.NewMetrics(), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHealthz_UnhealthyDependency(t *testing.T) {
	checks := map[string]handler.Pinger{
		"ledger": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	}
	router := handler.NewRouter(nil, nil, checks, observability.NewMetrics(), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, observability.NewMetrics(), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, observability.NewMetrics(), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestUnwiredServicesAreUnavailable(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, observability.NewMetrics(), zap.NewNop())

	rec := do(t, router, http.MethodGet, "/v1/accounts/ACC001/balance", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/chat/sessions", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --- Ledger routes ---

func TestLedgerRoutes(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/v1/accounts/ACC001/balance", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "5000.00", body["balance"])
	assert.Equal(t, "John Doe", body["customerName"])

	rec = do(t, h, http.MethodPost, "/v1/accounts/ACC001/deposit", `{"amount":"100.50"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "5100.50", body["newBalance"])
	assert.Equal(t, "Cash Deposit", body["description"])

	rec = do(t, h, http.MethodPost, "/v1/accounts/ACC003/withdraw", `{"amount":5000}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body = decode(t, rec)
	details := body["details"].(map[string]any)
	assert.Equal(t, "insufficient_funds", details["kind"])
	assert.Equal(t, "1200.00", details["available"])

	rec = do(t, h, http.MethodPost, "/v1/transfers",
		`{"fromAccount":"ACC001","toAccount":"ACC002","amount":"250","description":"rent"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "250.00", body["amount"])

	rec = do(t, h, http.MethodGet, "/v1/accounts/ACC001/transactions?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	txns := body["transactions"].([]any)
	require.Len(t, txns, 2)
	newest := txns[0].(map[string]any)
	assert.Equal(t, "transfer", newest["type"])
	assert.Equal(t, "debit", newest["direction"])

	rec = do(t, h, http.MethodGet, "/v1/accounts/ACC002/transactions/last", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "credit", decode(t, rec)["direction"])
}

func TestLedgerRoutes_Errors(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown account", http.MethodGet, "/v1/accounts/ACC999/balance", "", http.StatusNotFound},
		{"blank transfer source", http.MethodPost, "/v1/transfers", `{"fromAccount":" ","toAccount":"ACC002","amount":"1"}`, http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/v1/accounts/ACC001/deposit", `{"amount":"0"}`, http.StatusBadRequest},
		{"amount above max", http.MethodPost, "/v1/accounts/ACC001/deposit", `{"amount":100000000000000000}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/v1/accounts/ACC001/deposit", `{"amount":`, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/v1/accounts/ACC001/transactions?limit=abc", "", http.StatusBadRequest},
		{"bad account type", http.MethodPost, "/v1/accounts", `{"customerName":"Ann Lee","accountType":"crypto"}`, http.StatusBadRequest},
		{"no history", http.MethodGet, "/v1/accounts/ACC004/transactions/last", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateAccountRoute(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/accounts",
		`{"customerName":"Ann Lee","accountType":"Checking","initialDeposit":"50"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "checking", body["accountType"])
	assert.Equal(t, "1000.00", body["creditLimit"])
	assert.True(t, strings.HasPrefix(body["accountNumber"].(string), "ACC"))
}

// --- Chat routes ---

func startSession(t *testing.T, h http.Handler) (string, string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/chat/sessions", "", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	return body["sessionId"].(string), body["token"].(string)
}

func TestChatRoutes_TransferConversation(t *testing.T) {
	h := newTestServer(t)
	id, token := startSession(t, h)
	path := "/v1/chat/sessions/" + id + "/messages"

	steps := []struct {
		message string
		want    string
	}{
		{"I want to transfer money", "transfer_start"},
		{"ACC1", "transfer_validation_error"},
		{"ACC001", "transfer_step_toAccount"},
		{"ACC002", "transfer_step_amount"},
		{"100", "transfer_success"},
	}
	for _, s := range steps {
		rec := do(t, h, http.MethodPost, path, `{"message":"`+s.message+`"}`, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, s.want, decode(t, rec)["type"], s.message)
	}

	rec := do(t, h, http.MethodPost, path, `{"message":"check balance for ACC002"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "balance_inquiry", body["type"])
	assert.Equal(t, "3600.00", body["data"].(map[string]any)["balance"])

	rec = do(t, h, http.MethodPost, "/v1/chat/sessions/"+id+"/end", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "session_ended", decode(t, rec)["type"])
}

func TestChatRoutes_Auth(t *testing.T) {
	h := newTestServer(t)
	id, token := startSession(t, h)
	otherID, _ := startSession(t, h)

	rec := do(t, h, http.MethodPost, "/v1/chat/sessions/"+id+"/messages", `{"message":"help"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/chat/sessions/"+id+"/messages", `{"message":"help"}`, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/chat/sessions/"+otherID+"/messages", `{"message":"help"}`, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/chat/sessions/"+id+"/messages", `{"message":"   "}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
