// Package lock implements the two distributed locking primitives built on the
// shared cache: Optimistic, a versioned compare-and-swap value, and
// Pessimistic, a token-owned mutual exclusion lock with a TTL.
//
// Conflicts are reported as false results, never as errors: a stale version or
// a held lock is an expected outcome the caller retries or gives up on.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/dailyyoga/likesync/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend is the subset of the cache facade the locks need.
// *cache.Store implements it.
type Backend interface {
	Eval(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)
	HGetAll(ctx context.Context, key string) map[string]string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) bool
	Exists(ctx context.Context, key string) bool
}

// scriptSucceeded interprets the 1/0 reply of the lock scripts.
// A failed round trip counts as "not applied" and is logged.
func scriptSucceeded(log logger.Logger, op, key string, res any, err error) bool {
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Error("lock script failed",
				zap.String("op", op),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return false
	}
	n, ok := res.(int64)
	return ok && n == 1
}
