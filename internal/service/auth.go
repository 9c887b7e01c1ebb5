package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cashtrack/cashtrack/internal/auth"
	"github.com/cashtrack/cashtrack/internal/metrics"
	"github.com/cashtrack/cashtrack/internal/model"
	"github.com/cashtrack/cashtrack/internal/repository"
)

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByProvider(ctx context.Context, provider, subject string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// ProfileCache caches public profiles. Implementations return nil, nil on a miss.
type ProfileCache interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	SetProfile(ctx context.Context, user *model.User) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Session is an authenticated user with a freshly issued token.
type Session struct {
	User  *model.User
	Token string
}

// AuthService handles signup, login and federated provisioning.
type AuthService struct {
	users         UserStore
	profiles      ProfileCache
	tokens        TokenIssuer
	avatarBaseURL string
	metrics       metrics.Recorder
	logger        *slog.Logger
	now           func() time.Time
}

// NewAuthService creates a new AuthService. profiles may be nil.
func NewAuthService(users UserStore, profiles ProfileCache, tokens TokenIssuer, avatarBaseURL string, recorder metrics.Recorder, logger *slog.Logger) *AuthService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:         users,
		profiles:      profiles,
		tokens:        tokens,
		avatarBaseURL: avatarBaseURL,
		metrics:       recorder,
		logger:        logger,
		now:           time.Now,
	}
}

// SignupInput defines input for creating a password account.
type SignupInput struct {
	FullName        string
	Username        string
	Password        string
	ConfirmPassword string
	Gender          string
}

// Signup creates a password user and opens a session.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*Session, error) {
	fullName := strings.TrimSpace(input.FullName)
	username := strings.TrimSpace(input.Username)

	switch {
	case fullName == "":
		return nil, invalid("fullName", "is required")
	case username == "":
		return nil, invalid("username", "is required")
	case input.Password == "":
		return nil, invalid("password", "is required")
	}

	if input.Password != input.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	exists, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           newID(),
		FullName:     fullName,
		Username:     username,
		PasswordHash: hash,
		Gender:       strings.TrimSpace(input.Gender),
		ProfilePic:   s.defaultAvatar(username),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user_signed_up", "user_id", user.ID)

	return s.openSession(user)
}

// Login verifies a username and password. Unknown users, federated users and
// wrong passwords all fail with ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		auth.BurnVerify(password)
		return nil, s.loginFailed()
	}

	if !user.HasPassword() {
		auth.BurnVerify(password)
		return nil, s.loginFailed()
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("password_hash_unreadable", "user_id", user.ID, "error", err)
		return nil, s.loginFailed()
	}
	if !ok {
		return nil, s.loginFailed()
	}

	return s.openSession(user)
}

// LoginWithIdentity finds or provisions the user behind a provider identity
// and opens a session.
func (s *AuthService) LoginWithIdentity(ctx context.Context, identity *auth.Identity) (*Session, error) {
	user, err := s.users.GetUserByProvider(ctx, identity.Provider, identity.Subject)
	if err == nil {
		return s.openSession(user)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user, err = s.provision(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.openSession(user)
}

// Me returns the public profile of a user.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if s.profiles != nil {
		if cached, err := s.profiles.GetProfile(ctx, userID); err == nil && cached != nil {
			return cached, nil
		}
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if s.profiles != nil {
		if err := s.profiles.SetProfile(ctx, user); err != nil {
			s.logger.Warn("profile_cache_failed", "user_id", user.ID, "error", err)
		}
	}

	return user, nil
}

// provision creates the user for a first federated login. The username is
// the email when it is free, otherwise "{provider}_{subject}".
func (s *AuthService) provision(ctx context.Context, identity *auth.Identity) (*model.User, error) {
	fallback := identity.Provider + "_" + identity.Subject

	username := strings.TrimSpace(identity.Email)
	if username != "" {
		taken, err := s.users.UsernameExists(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			username = ""
		}
	}
	if username == "" {
		username = fallback
	}

	fullName := strings.TrimSpace(identity.Name)
	if fullName == "" {
		fullName = username
	}

	user := &model.User{
		ID:              newID(),
		FullName:        fullName,
		Username:        username,
		Provider:        identity.Provider,
		ProviderSubject: identity.Subject,
		ProfilePic:      s.defaultAvatar(username),
		CreatedAt:       s.now().UTC(),
	}

	err := s.users.CreateUser(ctx, user)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrIdentityExists):
		// A concurrent first login won the race.
		return s.users.GetUserByProvider(ctx, identity.Provider, identity.Subject)
	case errors.Is(err, repository.ErrUsernameExists) && username != fallback:
		user.Username = fallback
		user.ProfilePic = s.defaultAvatar(fallback)
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user_provisioned", "user_id", user.ID, "provider", identity.Provider)

	return user, nil
}

func (s *AuthService) openSession(user *model.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}
	return &Session{User: user, Token: token}, nil
}

func (s *AuthService) loginFailed() error {
	s.metrics.IncLoginFailed()
	return ErrInvalidCredentials
}

func (s *AuthService) defaultAvatar(username string) string {
	return s.avatarBaseURL + "?username=" + url.QueryEscape(username)
}
