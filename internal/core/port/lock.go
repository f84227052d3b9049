package port

import (
	"context"
	"time"
)

// Locker provides a best-effort distributed lock shared across service instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}
