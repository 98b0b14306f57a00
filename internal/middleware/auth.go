package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onemin-relay/relay/internal/apierr"
	"github.com/onemin-relay/relay/internal/config"
)

type contextKey string

const apiKeyContextKey contextKey = "onemin-api-key"

type AuthMiddleware struct {
	config *config.Manager
	logger *slog.Logger
}

// NewAuthMiddleware extracts the caller's bearer token and stashes it in the
// request context as the downstream credential. When the config pins an auth
// token, the bearer must match it exactly.
func NewAuthMiddleware(config *config.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	am := &AuthMiddleware{
		config: config,
		logger: logger,
	}

	return am.middleware
}

func (am *AuthMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			am.logger.Warn("Request without API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			apierr.Write(w, am.logger, r, apierr.Authentication("API key required. Pass your 1min.ai API key as a Bearer token"))

			return
		}

		if pinned := am.config.Get().AuthToken; pinned != "" && token != pinned {
			am.logger.Warn("Rejected API key", "remote_addr", r.RemoteAddr)
			apierr.Write(w, am.logger, r, apierr.Authentication("Invalid API key"))

			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), apiKeyContextKey, token)))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}

	return ""
}

// APIKey returns the credential the auth middleware stored for this request.
func APIKey(ctx context.Context) string {
	key, _ := ctx.Value(apiKeyContextKey).(string)
	return key
}
