package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Locker hands out named, expiring locks. With Redis they are shared by all
// instances; without it they only cover the current process.
type Locker struct {
	client *redis.Client

	mu    sync.Mutex
	local map[string]time.Time
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client, local: make(map[string]time.Time)}
}

// TryLock acquires name for ttl. It returns ok=false when someone else holds
// it. The returned release func is safe to call once the work is done.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error) {
	key := "lock:" + name
	if l.client != nil {
		token := uuid.NewString()
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil || !ok {
			return func() {}, false, err
		}
		return func() {
			releaseScript.Run(context.Background(), l.client, []string{key}, token)
		}, true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if until, held := l.local[key]; held && time.Now().Before(until) {
		return func() {}, false, nil
	}
	until := time.Now().Add(ttl)
	l.local[key] = until
	return func() {
		l.mu.Lock()
		if l.local[key] == until {
			delete(l.local, key)
		}
		l.mu.Unlock()
	}, true, nil
}
