package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatservice "github.com/boddenberg/bankbot-go/internal/chat/service"
)

// SessionAuthMiddleware validates the Bearer session token and requires its
// subject to match the {sessionId} route parameter. It must be attached with
// chi's With so the route parameter is resolved.
func SessionAuthMiddleware(tokens *chatservice.SessionTokens, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing session token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing session token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := tokens.Validate(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired session token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			if sessionID := chi.URLParam(r, "sessionId"); sessionID != claims.Sub {
				logger.Warn("auth: session token does not match route",
					zap.String("path", r.URL.Path),
					zap.String("session_id", sessionID),
				)
				writeError(w, http.StatusUnauthorized, "session token does not belong to this session")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
