package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cashtrack/cashtrack/internal/handler/dto"
	"github.com/cashtrack/cashtrack/internal/service"
)

// AuthHandler handles signup, login, logout and the current user.
type AuthHandler struct {
	svc    *service.AuthService
	cookie SessionCookie
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, cookie SessionCookie, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:    svc,
		cookie: cookie,
		logger: logger,
	}
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	session, err := h.svc.Signup(r.Context(), service.SignupInput{
		FullName:        req.FullName,
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Gender:          req.Gender,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.cookie.set(w, session.Token)
	writeJSON(w, http.StatusCreated, dto.ToUserResponse(session.User))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	session, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user_logged_in", "user_id", session.User.ID)

	h.cookie.set(w, session.Token)
	writeJSON(w, http.StatusOK, dto.ToUserResponse(session.User))
}

// Logout handles POST /api/auth/logout. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.clear(w)
	writeMessage(w, "Logged out successfully!")
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}
