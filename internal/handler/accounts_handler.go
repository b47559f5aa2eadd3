package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/port"
)

// ============================================================
// Accounts Handlers
// ============================================================

func createAccountHandler(ledger port.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts")
		defer span.End()

		var req domain.CreateAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		deposit := decimal.Zero
		if req.InitialDeposit != nil {
			deposit = req.InitialDeposit.Decimal
		}

		res, err := ledger.CreateAccount(ctx, req.CustomerName, req.AccountType, deposit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func balanceHandler(ledger port.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountNumber}/balance")
		defer span.End()

		accountNumber := chi.URLParam(r, "accountNumber")
		span.SetAttributes(attribute.String("account.number", accountNumber))

		res, err := ledger.CheckBalance(ctx, accountNumber)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func historyHandler(ledger port.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountNumber}/transactions")
		defer span.End()

		limit, err := parseLimit(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := ledger.TransactionHistory(ctx, chi.URLParam(r, "accountNumber"), limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func lastTransactionHandler(ledger port.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountNumber}/transactions/last")
		defer span.End()

		accountNumber := chi.URLParam(r, "accountNumber")
		entry, err := ledger.LastTransaction(ctx, accountNumber)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if entry == nil {
			handleServiceError(w, &domain.ErrNotFound{Resource: "transaction", ID: accountNumber}, logger)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

// ============================================================
// Money movement
// ============================================================

func depositHandler(ledger port.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountNumber}/deposit")
		defer span.End()

		var req domain.MoneyRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := ledger.Deposit(ctx, chi.URLParam(r, "accountNumber"), req.Amount.Decimal, req.Description)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func withdrawHandler(ledger port.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountNumber}/withdraw")
		defer span.End()

		var req domain.MoneyRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := ledger.Withdraw(ctx, chi.URLParam(r, "accountNumber"), req.Amount.Decimal, req.Description)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func transferHandler(ledger port.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transfers")
		defer span.End()

		var req domain.TransferRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := ledger.Transfer(ctx, req.FromAccount, req.ToAccount, req.Amount.Decimal, req.Description)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
