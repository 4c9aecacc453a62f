package lock

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/dailyyoga/likesync/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Value is a versioned optimistic value. Version starts at 1 and grows by
// exactly one per successful Set.
type Value[T any] struct {
	Data    T
	Version int64
}

// The value lives in a hash with a JSON "data" field and an integer "version"
// field, so the compare step never has to decode the payload server-side.
var (
	initScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', 1)
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

	createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', 1)
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

	casScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if not current then
  return 0
end
local expected = tonumber(ARGV[2])
if tonumber(current) ~= expected then
  return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', expected + 1)
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)
)

// Optimistic stores values of type T under version-checked keys
type Optimistic[T any] struct {
	backend Backend
	logger  logger.Logger
}

// NewOptimistic creates an optimistic lock over backend
func NewOptimistic[T any](log logger.Logger, backend Backend) *Optimistic[T] {
	return &Optimistic[T]{backend: backend, logger: log}
}

// Init unconditionally stores data at version 1. A ttl of 0 keeps the key forever.
func (o *Optimistic[T]) Init(ctx context.Context, key string, data T, ttl time.Duration) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		o.logger.Error("optimistic init failed", zap.Error(ErrEncode(key, err)))
		return false
	}
	res, err := o.backend.Eval(ctx, initScript, []string{key}, payload, ttlMillis(ttl))
	return scriptSucceeded(o.logger, "init", key, res, err)
}

// Create stores data at version 1 only if key does not exist yet
func (o *Optimistic[T]) Create(ctx context.Context, key string, data T, ttl time.Duration) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		o.logger.Error("optimistic create failed", zap.Error(ErrEncode(key, err)))
		return false
	}
	res, err := o.backend.Eval(ctx, createScript, []string{key}, payload, ttlMillis(ttl))
	return scriptSucceeded(o.logger, "create", key, res, err)
}

// Get reads the current value. A missing key, a failed read and an
// undecodable value all report ok=false.
func (o *Optimistic[T]) Get(ctx context.Context, key string) (Value[T], bool) {
	var v Value[T]

	fields := o.backend.HGetAll(ctx, key)
	raw, hasData := fields["data"]
	rawVersion, hasVersion := fields["version"]
	if !hasData || !hasVersion {
		return v, false
	}

	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		o.logger.Warn("optimistic value has invalid version, treating as absent",
			zap.String("key", key),
			zap.String("version", rawVersion),
		)
		return v, false
	}
	if err := json.Unmarshal([]byte(raw), &v.Data); err != nil {
		o.logger.Warn("optimistic value undecodable, treating as absent",
			zap.String("key", key),
			zap.Error(err),
		)
		return v, false
	}
	v.Version = version
	return v, true
}

// Set replaces the value with data at expectedVersion+1, but only if the stored
// version still equals expectedVersion. The read-compare-write runs as one
// server-side script. false means the key is absent or the version was stale:
// re-read and retry.
func (o *Optimistic[T]) Set(ctx context.Context, key string, data T, expectedVersion int64, ttl time.Duration) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		o.logger.Error("optimistic set failed", zap.Error(ErrEncode(key, err)))
		return false
	}
	res, err := o.backend.Eval(ctx, casScript, []string{key}, payload, expectedVersion, ttlMillis(ttl))
	return scriptSucceeded(o.logger, "set", key, res, err)
}

// Update runs the read-modify-CAS loop: fn receives the current data (the zero
// value when the key is absent) and returns the replacement. It gives up with
// ErrConflict after maxAttempts lost races; an error from fn aborts immediately.
func (o *Optimistic[T]) Update(ctx context.Context, key string, ttl time.Duration, maxAttempts int, fn func(current T) (T, error)) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, ok := o.Get(ctx, key)
		next, err := fn(current.Data)
		if err != nil {
			return err
		}

		if !ok {
			if o.Create(ctx, key, next, ttl) {
				return nil
			}
			continue
		}
		if o.Set(ctx, key, next, current.Version, ttl) {
			return nil
		}
	}
	return ErrConflict
}

// ttlMillis converts ttl for PEXPIRE, rounding up so that a positive ttl
// under a millisecond still expires instead of meaning "keep forever"
func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Millisecond - 1) / time.Millisecond)
}
