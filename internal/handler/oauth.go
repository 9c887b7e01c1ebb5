package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cashtrack/cashtrack/internal/auth"
	"github.com/cashtrack/cashtrack/internal/handler/dto"
	"github.com/cashtrack/cashtrack/internal/service"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600
)

// IdentityProvider runs the authorization-code flow of one provider.
type IdentityProvider interface {
	Name() string
	AuthCodeURL(state string) string
	FetchIdentity(ctx context.Context, code string) (*auth.Identity, error)
}

// OAuthHandler handles federated login.
type OAuthHandler struct {
	svc       *service.AuthService
	providers map[string]IdentityProvider
	cookie    SessionCookie
	logger    *slog.Logger
}

// NewOAuthHandler creates a new OAuthHandler. Only the given providers are
// routable; any other name answers 404.
func NewOAuthHandler(svc *service.AuthService, cookie SessionCookie, logger *slog.Logger, providers ...IdentityProvider) *OAuthHandler {
	byName := make(map[string]IdentityProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &OAuthHandler{
		svc:       svc,
		providers: byName,
		cookie:    cookie,
		logger:    logger,
	}
}

// Begin handles GET /api/auth/{provider}.
func (h *OAuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /api/auth/{provider}/callback.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	var stored string
	if c, err := r.Cookie(oauthStateCookie); err == nil {
		stored = c.Value
	}
	h.clearState(w)

	if !auth.StatesEqual(stored, query.Get("state")) {
		h.logger.Warn("oauth_state_mismatch", "provider", provider.Name())
		writeError(w, http.StatusBadRequest, "INVALID_STATE", "Login session expired, please try again")
		return
	}

	if denied := query.Get("error"); denied != "" {
		writeError(w, http.StatusUnauthorized, "PROVIDER_DENIED", "Login was cancelled at the provider")
		return
	}

	code := query.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "MISSING_CODE", "Authorization code is required")
		return
	}

	identity, err := provider.FetchIdentity(r.Context(), code)
	if err != nil {
		if errors.Is(err, auth.ErrProviderExchange) {
			h.logger.Warn("oauth_exchange_failed", "provider", provider.Name(), "error", err)
			writeError(w, http.StatusBadGateway, "PROVIDER_ERROR", "Could not complete login with the provider")
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	session, err := h.svc.LoginWithIdentity(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user_logged_in", "user_id", session.User.ID, "provider", provider.Name())

	h.cookie.set(w, session.Token)
	writeJSON(w, http.StatusOK, dto.ToUserResponse(session.User))
}

func (h *OAuthHandler) provider(w http.ResponseWriter, r *http.Request) (IdentityProvider, bool) {
	p, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return nil, false
	}
	return p, true
}

func (h *OAuthHandler) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
