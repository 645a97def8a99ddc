package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// TokenBlacklist remembers logged out tokens until they expire. Entries go
// to Redis when available and to an in-process map otherwise, or when Redis
// errors.
type TokenBlacklist struct {
	client *redis.Client
	logger *zap.Logger

	mu    sync.RWMutex
	local map[string]time.Time
}

func NewTokenBlacklist(client *redis.Client, logger *zap.Logger) *TokenBlacklist {
	return &TokenBlacklist{
		client: client,
		logger: logger,
		local:  make(map[string]time.Time),
	}
}

// Add blacklists token until expiry.
func (b *TokenBlacklist) Add(ctx context.Context, token string, expiry time.Time) {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return
	}
	key := blacklistKey(token)
	if b.client != nil {
		err := b.client.Set(ctx, key, 1, ttl).Err()
		if err == nil {
			return
		}
		b.logger.Warn("token blacklist: redis set failed, keeping token in memory", zap.Error(err))
	}
	b.mu.Lock()
	b.local[key] = expiry
	b.mu.Unlock()
}

// Contains reports whether token has been blacklisted.
func (b *TokenBlacklist) Contains(ctx context.Context, token string) bool {
	key := blacklistKey(token)

	b.mu.RLock()
	expiry, ok := b.local[key]
	b.mu.RUnlock()
	if ok && time.Now().Before(expiry) {
		return true
	}

	if b.client != nil {
		n, err := b.client.Exists(ctx, key).Result()
		if err != nil {
			b.logger.Warn("token blacklist: redis lookup failed", zap.Error(err))
			return false
		}
		return n > 0
	}
	return false
}

// Cleanup drops expired in-process entries and returns how many were removed.
func (b *TokenBlacklist) Cleanup(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for key, expiry := range b.local {
		if now.After(expiry) {
			delete(b.local, key)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (b *TokenBlacklist) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.Cleanup(now)
		}
	}
}

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "token_blacklist:" + hex.EncodeToString(sum[:])
}
