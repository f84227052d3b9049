package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	red "github.com/redis/go-redis/v9"
)

const defaultLockPrefix = "lock"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = red.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockRepository implements port.Locker with SET NX PX.
type LockRepository struct {
	client *red.Client
	prefix string
}

// NewLockRepository constructs a lock repository scoped under keyPrefix.
func NewLockRepository(client *red.Client, keyPrefix string) *LockRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultLockPrefix
	}
	return &LockRepository{client: client, prefix: prefix}
}

// TryLock attempts to take key for ttl. acquired is false when another holder owns it.
func (r *LockRepository) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, errors.New("lock key is required")
	}
	if ttl <= 0 {
		return nil, false, errors.New("lock ttl must be positive")
	}

	fullKey := r.key(key)
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{fullKey}, token).Err(); err != nil && !errors.Is(err, red.Nil) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}

	return release, true, nil
}

func (r *LockRepository) key(name string) string {
	return fmt.Sprintf("%s:%s", r.prefix, name)
}
