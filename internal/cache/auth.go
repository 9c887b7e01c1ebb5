package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cashtrack/cashtrack/internal/model"
)

const (
	// profileCachePrefix is the Redis key prefix for cached public profiles.
	profileCachePrefix = "auth:profile:"
	// profileCacheTTL is the time-to-live for cached profiles.
	profileCacheTTL = 5 * time.Minute
)

// CachedProfile is the public part of a user stored in Redis.
// Credentials are never cached.
type CachedProfile struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Username   string `json:"username"`
	ProfilePic string `json:"profile_pic"`
}

// GetProfile retrieves a cached public profile by user ID.
// Returns nil if not found (cache miss).
func (c *Cache) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	data, err := c.client.Get(ctx, profileCachePrefix+userID).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var cached CachedProfile
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.User{
		ID:         cached.ID,
		FullName:   cached.FullName,
		Username:   cached.Username,
		ProfilePic: cached.ProfilePic,
	}, nil
}

// SetProfile caches the public profile of a user.
func (c *Cache) SetProfile(ctx context.Context, user *model.User) error {
	cached := CachedProfile{
		ID:         user.ID,
		FullName:   user.FullName,
		Username:   user.Username,
		ProfilePic: user.ProfilePic,
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	return c.client.Set(ctx, profileCachePrefix+user.ID, data, profileCacheTTL).Err()
}

// DeleteProfile removes a cached profile.
// Used when the avatar of a user changes.
func (c *Cache) DeleteProfile(ctx context.Context, userID string) error {
	return c.client.Del(ctx, profileCachePrefix+userID).Err()
}
