package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/boddenberg/bankbot-go/internal/domain"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error   string               `json:"error"`
	Details *domain.ErrorPayload `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body: " + err.Error()}
	}
	return nil
}

// parseLimit reads ?limit=. Missing means 0, which the ledger treats as its
// default.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &domain.ErrValidation{Field: "limit", Message: "limit must be a non-negative integer"}
	}
	return n, nil
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	payload := domain.NewErrorPayload(err)
	status := statusFor(payload.Kind)

	var insufficientFunds *domain.ErrInsufficientFunds
	switch {
	case errors.As(err, &insufficientFunds):
		logger.Warn("insufficient funds",
			zap.String("available", payload.Available),
			zap.String("requested", payload.Requested),
		)
	case status == http.StatusServiceUnavailable:
		logger.Error("circuit breaker open", zap.Error(err))
	case status >= http.StatusInternalServerError:
		logger.Error("unhandled error", zap.Error(err))
	default:
		logger.Debug("request rejected", zap.String("kind", string(payload.Kind)), zap.String("error", err.Error()))
	}

	writeJSON(w, status, errorResponse{Error: payload.Message, Details: payload})
}
