package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cashtrack/cashtrack/internal/lock"
)

const (
	// recordLockPrefix is the Redis key prefix for per-record leases.
	recordLockPrefix = "lock:record:"
	// lockRetryInterval is the pause between acquisition attempts.
	lockRetryInterval = 25 * time.Millisecond
	// lockReleaseTimeout bounds the release call after the request ended.
	lockReleaseTimeout = 2 * time.Second
)

// releaseLockScript deletes the lease only if it still carries our token.
var releaseLockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RecordLocker hands out per-record leases stored in Redis, so that
// concurrent requests on several API instances do not interleave.
type RecordLocker struct {
	cache *Cache
	ttl   time.Duration
}

// NewRecordLocker creates a locker whose leases expire after ttl.
func NewRecordLocker(c *Cache, ttl time.Duration) *RecordLocker {
	return &RecordLocker{cache: c, ttl: ttl}
}

// Acquire waits until the lease for key is obtained or ctx is done.
// The lease expires on its own after the TTL if release is never called.
func (l *RecordLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := recordLockKey(key)
	token, err := newLockToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.cache.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire record lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(lock.ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
		defer cancel()
		_ = releaseLockScript.Run(releaseCtx, l.cache.client, []string{redisKey}, token).Err()
	}
	return release, nil
}

func recordLockKey(key string) string {
	return recordLockPrefix + key
}

// newLockToken returns a random token identifying one lease holder.
func newLockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
