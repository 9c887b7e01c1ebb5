package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashtrack/cashtrack/internal/auth"
	"github.com/cashtrack/cashtrack/internal/metrics"
	"github.com/cashtrack/cashtrack/internal/model"
	"github.com/cashtrack/cashtrack/internal/testutil/memstore"
)

const (
	testSecret = "test-secret-that-is-at-least-32-bytes-long"
	avatarBase = "https://avatar.test/public"
)

type authEnv struct {
	svc      *AuthService
	users    *memstore.Users
	profiles *mapProfileCache
	tokens   *auth.TokenIssuer
	metrics  *metrics.InMemoryRecorder
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	env := &authEnv{
		users:    memstore.NewUsers(),
		profiles: newMapProfileCache(),
		tokens:   auth.NewTokenIssuer(testSecret, time.Hour),
		metrics:  metrics.NewInMemory(),
	}
	env.svc = NewAuthService(env.users, env.profiles, env.tokens, avatarBase, env.metrics, discardLogger())
	return env
}

func validSignup() SignupInput {
	return SignupInput{
		FullName:        "Alice Doe",
		Username:        "alice",
		Password:        "s3cret-pass",
		ConfirmPassword: "s3cret-pass",
		Gender:          "female",
	}
}

func TestAuthService_Signup(t *testing.T) {
	env := newAuthEnv(t)

	session, err := env.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	user := session.User
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Alice Doe", user.FullName)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, avatarBase+"?username=alice", user.ProfilePic)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$argon2id$"))
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	userID, err := env.tokens.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestAuthService_Signup_Errors(t *testing.T) {
	env := newAuthEnv(t)
	_, err := env.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	mismatch := validSignup()
	mismatch.Username = "bob"
	mismatch.ConfirmPassword = "different"
	_, err = env.svc.Signup(context.Background(), mismatch)
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	_, err = env.svc.Signup(context.Background(), validSignup())
	assert.ErrorIs(t, err, ErrUsernameTaken)

	missing := validSignup()
	missing.Username = " "
	_, err = env.svc.Signup(context.Background(), missing)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "username", verr.Field)

	assert.Equal(t, 1, env.users.Len())
}

func TestAuthService_Login(t *testing.T) {
	env := newAuthEnv(t)
	signup, err := env.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	session, err := env.svc.Login(context.Background(), "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, signup.User.ID, session.User.ID)
	assert.NotEmpty(t, session.Token)
}

func TestAuthService_Login_NoEnumeration(t *testing.T) {
	env := newAuthEnv(t)
	_, err := env.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	_, wrongPassword := env.svc.Login(context.Background(), "alice", "nope")
	_, unknownUser := env.svc.Login(context.Background(), "mallory", "nope")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Equal(t, uint64(2), env.metrics.Snapshot().LoginsFailed)
}

func TestAuthService_Login_FederatedUserHasNoPassword(t *testing.T) {
	env := newAuthEnv(t)
	session, err := env.svc.LoginWithIdentity(context.Background(), &auth.Identity{
		Provider: model.ProviderGoogle,
		Subject:  "g-1",
		Name:     "Gina",
		Email:    "gina@example.com",
	})
	require.NoError(t, err)

	_, err = env.svc.Login(context.Background(), session.User.Username, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_LoginWithIdentity(t *testing.T) {
	env := newAuthEnv(t)
	identity := &auth.Identity{
		Provider: model.ProviderGoogle,
		Subject:  "g-1",
		Name:     "Gina",
		Email:    "gina@example.com",
	}

	first, err := env.svc.LoginWithIdentity(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, "gina@example.com", first.User.Username)
	assert.Equal(t, "Gina", first.User.FullName)
	assert.True(t, first.User.IsFederated())
	assert.False(t, first.User.HasPassword())

	again, err := env.svc.LoginWithIdentity(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID, "repeat login finds the same user")
	assert.Equal(t, 1, env.users.Len())
}

func TestAuthService_LoginWithIdentity_UsernameFallback(t *testing.T) {
	tests := []struct {
		name     string
		identity auth.Identity
		seed     string
		want     string
	}{
		{
			name:     "no email",
			identity: auth.Identity{Provider: model.ProviderFacebook, Subject: "fb-9", Name: "Fay"},
			want:     "facebook_fb-9",
		},
		{
			name:     "email taken",
			identity: auth.Identity{Provider: model.ProviderGoogle, Subject: "g-2", Email: "alice"},
			seed:     "alice",
			want:     "google_g-2",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			env := newAuthEnv(t)
			if tt.seed != "" {
				in := validSignup()
				in.Username = tt.seed
				_, err := env.svc.Signup(context.Background(), in)
				require.NoError(t, err)
			}

			session, err := env.svc.LoginWithIdentity(context.Background(), &tt.identity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, session.User.Username)
			assert.NotEmpty(t, session.User.FullName)
		})
	}
}

func TestAuthService_Me(t *testing.T) {
	env := newAuthEnv(t)
	signup, err := env.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	me, err := env.svc.Me(context.Background(), signup.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, 1, env.profiles.Len(), "profile cached after first lookup")

	cached, err := env.svc.Me(context.Background(), signup.User.ID)
	require.NoError(t, err)
	assert.Equal(t, me.ID, cached.ID)
	assert.Empty(t, cached.PasswordHash)

	_, err = env.svc.Me(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// mapProfileCache is an in-memory ProfileCache.
type mapProfileCache struct {
	mu    sync.Mutex
	items map[string]model.User
}

func newMapProfileCache() *mapProfileCache {
	return &mapProfileCache{items: make(map[string]model.User)}
}

func (c *mapProfileCache) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.items[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (c *mapProfileCache) SetProfile(ctx context.Context, user *model.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[user.ID] = model.User{ID: user.ID, FullName: user.FullName, Username: user.Username, ProfilePic: user.ProfilePic}
	return nil
}

func (c *mapProfileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
