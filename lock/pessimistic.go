package lock

import (
	"context"
	"time"

	"github.com/dailyyoga/likesync/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only when it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Pessimistic is a mutual exclusion lock: the key exists while the lock is
// held and its value identifies the holder. Locks expire with their TTL and
// are never renewed; pick a TTL longer than the critical section.
type Pessimistic struct {
	backend Backend
	logger  logger.Logger
}

// NewPessimistic creates a pessimistic lock over backend
func NewPessimistic(log logger.Logger, backend Backend) *Pessimistic {
	return &Pessimistic{backend: backend, logger: log}
}

// NewToken returns a fresh holder token
func NewToken() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Acquire sets key to token if it is absent, expiring after ttl.
// false means someone else holds the lock (or the cache was unreachable).
func (p *Pessimistic) Acquire(ctx context.Context, key, token string, ttl time.Duration) bool {
	return p.backend.SetNX(ctx, key, token, ttl)
}

// Release deletes key only if it still holds token. A lock that expired and
// was taken over by another holder is left untouched and false is returned.
func (p *Pessimistic) Release(ctx context.Context, key, token string) bool {
	res, err := p.backend.Eval(ctx, releaseScript, []string{key}, token)
	return scriptSucceeded(p.logger, "release", key, res, err)
}

// IsLocked reports whether key is currently held. Best effort, not atomic with anything.
func (p *Pessimistic) IsLocked(ctx context.Context, key string) bool {
	return p.backend.Exists(ctx, key)
}

// WithLock runs fn while holding key. It returns ErrNotAcquired without
// running fn when the lock is held elsewhere.
func (p *Pessimistic) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token := NewToken()
	if !p.Acquire(ctx, key, token, ttl) {
		return ErrNotAcquired
	}
	defer func() {
		if !p.Release(ctx, key, token) {
			p.logger.Warn("lock expired before release", zap.String("key", key), zap.Duration("ttl", ttl))
		}
	}()
	return fn(ctx)
}
