package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cashtrack/cashtrack/internal/auth"
	"github.com/cashtrack/cashtrack/internal/cache"
	"github.com/cashtrack/cashtrack/internal/model"
	"github.com/cashtrack/cashtrack/internal/repository"
)

type output struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	ProfilePic string `json:"profile_pic"`
	Created    bool   `json:"created"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		redisURL    = flag.String("redis-url", os.Getenv("REDIS_URL"), "Redis URL, used to drop a stale cached profile")
		username    = flag.String("username", "demo", "Username of the account")
		fullName    = flag.String("full-name", "Demo User", "Full name of the account")
		avatar      = flag.String("avatar", "", "Profile picture URL (default: generated avatar)")
		avatarBase  = flag.String("avatar-base-url", envOr("AVATAR_BASE_URL", "https://avatar.iran.liara.run/public/default"), "Default avatar prefix")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fail("DATABASE_URL is required")
	}
	password := os.Getenv("BOOTSTRAP_PASSWORD")
	if password == "" {
		fail("BOOTSTRAP_PASSWORD is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fail("connect database:", err)
	}
	defer repo.Close()

	profilePic := *avatar
	if profilePic == "" {
		profilePic = *avatarBase + "?username=" + url.QueryEscape(*username)
	}

	user, created, err := ensureUser(ctx, repo, *username, *fullName, password, profilePic)
	if err != nil {
		fail(err.Error())
	}

	// An existing account only gets its avatar replaced.
	if !created && *avatar != "" && user.ProfilePic != *avatar {
		if err := repo.UpdateUserAvatar(ctx, user.ID, *avatar); err != nil {
			fail("update avatar:", err)
		}
		user.ProfilePic = *avatar
		dropCachedProfile(ctx, *redisURL, user.ID)
	}

	out := output{
		UserID:     user.ID,
		Username:   user.Username,
		ProfilePic: user.ProfilePic,
		Created:    created,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.UserID)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fail("invalid format; use plain or json")
	}
}

func ensureUser(ctx context.Context, repo *repository.Repository, username, fullName, password, profilePic string) (*model.User, bool, error) {
	existing, err := repo.GetUserByUsername(ctx, username)
	if err == nil {
		if !existing.HasPassword() {
			return nil, false, fmt.Errorf("user %s is federated and cannot be bootstrapped", username)
		}
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		FullName:     fullName,
		Username:     username,
		PasswordHash: hash,
		ProfilePic:   profilePic,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return user, true, nil
}

func dropCachedProfile(ctx context.Context, redisURL, userID string) {
	if redisURL == "" {
		return
	}
	c, err := cache.New(ctx, redisURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: redis unavailable, cached profile may be stale:", err)
		return
	}
	defer c.Close()

	if err := c.DeleteProfile(ctx, userID); err != nil {
		fmt.Fprintln(os.Stderr, "warning: drop cached profile:", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(args ...any) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}
