package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cashtrack/cashtrack/internal/auth"
	"github.com/cashtrack/cashtrack/internal/model"
)

// Sources a session token can arrive from.
const (
	SourceBearer = "bearer"
	SourceCookie = "cookie"
)

// TokenVerifier checks a session token and returns the user ID it carries.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger     *slog.Logger
	Tokens     TokenVerifier
	CookieName string
}

// Auth returns a middleware that authenticates requests by session token.
// The token is read from "Authorization: Bearer <token>" or from the session
// cookie. Any missing, malformed, forged or expired token is rejected with
// 401 before the handler runs.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, source := extractSessionToken(r, cfg.CookieName)
			if token == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			userID, err := cfg.Tokens.Verify(token)
			if err != nil {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "invalid_token"),
					slog.String("source", source),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			authCtx := &model.AuthContext{UserID: userID, Source: source}
			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractSessionToken reads the token from the Authorization header first,
// then from the session cookie.
func extractSessionToken(r *http.Request, cookieName string) (string, string) {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token), SourceBearer
		}
	}

	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
			return cookie.Value, SourceCookie
		}
	}

	return "", ""
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures.
func writeAuthError(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized: invalid or missing session")
}
