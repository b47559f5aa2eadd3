// Package handler exposes the chat session routes:
//
//	POST /v1/chat/sessions                        open a session, returns a token
//	POST /v1/chat/sessions/{sessionId}/messages   send one message (Bearer token)
//	POST /v1/chat/sessions/{sessionId}/end        end the session (Bearer token)
//
// Token checks are done by the router's session middleware before these
// handlers run.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	chatdomain "github.com/boddenberg/bankbot-go/internal/chat/domain"
	"github.com/boddenberg/bankbot-go/internal/chat/service"
	maindomain "github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/infra/observability"
)

var tracer = otel.Tracer("chat/handler")

// maxMessageLength bounds a single chat message.
const maxMessageLength = 2000

// ============================================================
// POST /v1/chat/sessions
// ============================================================

// StartSessionHandler opens a chat session.
func StartSessionHandler(chatSvc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chat/sessions")
		defer span.End()

		started, err := chatSvc.StartSession(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("session.id", started.SessionID))

		writeJSON(w, http.StatusCreated, started)
	}
}

// ============================================================
// POST /v1/chat/sessions/{sessionId}/messages
// ============================================================

// MessageHandler answers one user message.
//
// Request:
//
//	{"message": "transfer money"}
//
// Response (200 OK):
//
//	{"message": "...", "type": "transfer_start", "sessionId": "...", "timestamp": "..."}
func MessageHandler(chatSvc *service.ChatService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chat/sessions/{sessionId}/messages")
		defer span.End()

		sessionID := chi.URLParam(r, "sessionId")
		span.SetAttributes(attribute.String("session.id", sessionID))

		status := http.StatusOK
		defer func() { metrics.IncrRequest(strconv.Itoa(status)) }()

		var req chatdomain.MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			status = http.StatusBadRequest
			writeError(w, status, "invalid request body: expected {\"message\": \"your message\"}")
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			status = http.StatusBadRequest
			writeError(w, status, "message is required")
			return
		}
		if len(req.Message) > maxMessageLength {
			status = http.StatusBadRequest
			writeError(w, status, "message is too long")
			return
		}

		reply, err := chatSvc.ProcessMessage(ctx, sessionID, req.Message)
		if err != nil {
			status = handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, status, chatdomain.MessageResponse{
			Reply:     reply,
			SessionID: sessionID,
			Timestamp: time.Now().UTC(),
		})
	}
}

// ============================================================
// POST /v1/chat/sessions/{sessionId}/end
// ============================================================

// EndSessionHandler ends a session and clears its flow state.
func EndSessionHandler(chatSvc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chat/sessions/{sessionId}/end")
		defer span.End()

		sessionID := chi.URLParam(r, "sessionId")
		span.SetAttributes(attribute.String("session.id", sessionID))

		reply, err := chatSvc.EndSession(ctx, sessionID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, chatdomain.MessageResponse{
			Reply:     reply,
			SessionID: sessionID,
			Timestamp: time.Now().UTC(),
		})
	}
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleServiceError writes the response for err and returns its status.
// Ledger errors never get here: they are rendered as error replies.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) int {
	var unauthorized *maindomain.ErrUnauthorized
	var validation *maindomain.ErrValidation

	switch {
	case errors.As(err, &unauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
		return http.StatusUnauthorized
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Message)
		return http.StatusBadRequest
	default:
		logger.Error("unexpected error in chat handler", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return http.StatusInternalServerError
	}
}
