package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dailyyoga/likesync/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the typed facade over the shared cache.
//
// The cache is an optimization, not a source of truth: read operations log
// transport and decode failures and return an empty result, write operations
// log and return false. Only Eval, Batch and Watch surface errors, because
// their callers need to tell a failed mutation from a rejected one.
type Store struct {
	rdb    redis.UniversalClient
	logger logger.Logger
}

// NewStore creates a facade over the given client
func NewStore(log logger.Logger, rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb, logger: log}
}

// Client returns the underlying client
func (s *Store) Client() redis.UniversalClient {
	return s.rdb
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get returns the string value of key; ok is false on a miss or on failure
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		s.readFailed("get", key, err)
		return "", false
	}
	return val, true
}

// GetInt returns the integer value of key; ok is false on a miss, on failure
// or when the value is not an integer
func (s *Store) GetInt(ctx context.Context, key string) (int64, bool) {
	val, ok := s.Get(ctx, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		s.readFailed("get_int", key, err)
		return 0, false
	}
	return n, true
}

// Set stores value with an optional ttl (0 means no expiry)
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.writeFailed("set", key, err)
		return false
	}
	return true
}

// SetNX stores value only when key is absent; false means absent-check failed or write failed
func (s *Store) SetNX(ctx context.Context, key string, value any, ttl time.Duration) bool {
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		s.writeFailed("setnx", key, err)
		return false
	}
	return ok
}

// Exists reports whether key exists
func (s *Store) Exists(ctx context.Context, key string) bool {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		s.readFailed("exists", key, err)
		return false
	}
	return n > 0
}

// Del removes keys. Keys from different shards must be deleted in separate calls.
func (s *Store) Del(ctx context.Context, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.writeFailed("del", keys[0], err)
		return false
	}
	return true
}

// SIsMember reports whether member is in the set at key
func (s *Store) SIsMember(ctx context.Context, key string, member any) bool {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		s.readFailed("sismember", key, err)
		return false
	}
	return ok
}

// SMembers returns all members of the set at key
func (s *Store) SMembers(ctx context.Context, key string) []string {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		s.readFailed("smembers", key, err)
		return nil
	}
	return members
}

// SCard returns the cardinality of the set at key
func (s *Store) SCard(ctx context.Context, key string) int64 {
	n, err := s.rdb.SCard(ctx, key).Result()
	if err != nil {
		s.readFailed("scard", key, err)
		return 0
	}
	return n
}

// SAdd adds members to the set at key
func (s *Store) SAdd(ctx context.Context, key string, members ...any) bool {
	if err := s.rdb.SAdd(ctx, key, members...).Err(); err != nil {
		s.writeFailed("sadd", key, err)
		return false
	}
	return true
}

// SRem removes members from the set at key
func (s *Store) SRem(ctx context.Context, key string, members ...any) bool {
	if err := s.rdb.SRem(ctx, key, members...).Err(); err != nil {
		s.writeFailed("srem", key, err)
		return false
	}
	return true
}

// HGetAll returns every field of the hash at key; never nil
func (s *Store) HGetAll(ctx context.Context, key string) map[string]string {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		s.readFailed("hgetall", key, err)
		return map[string]string{}
	}
	return fields
}

// HSetNX sets field only when it does not exist yet; false when it existed or on failure
func (s *Store) HSetNX(ctx context.Context, key, field string, value any) bool {
	ok, err := s.rdb.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		s.writeFailed("hsetnx", key, err)
		return false
	}
	return ok
}

// HIncrBy increments field of the hash at key and returns the new value
func (s *Store) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, bool) {
	n, err := s.rdb.HIncrBy(ctx, key, field, incr).Result()
	if err != nil {
		s.writeFailed("hincrby", key, err)
		return 0, false
	}
	return n, true
}

// HDel removes fields from the hash at key
func (s *Store) HDel(ctx context.Context, key string, fields ...string) bool {
	if err := s.rdb.HDel(ctx, key, fields...).Err(); err != nil {
		s.writeFailed("hdel", key, err)
		return false
	}
	return true
}

// LPush prepends values to the list at key
func (s *Store) LPush(ctx context.Context, key string, values ...any) bool {
	if err := s.rdb.LPush(ctx, key, values...).Err(); err != nil {
		s.writeFailed("lpush", key, err)
		return false
	}
	return true
}

// RPop removes and returns the last element of the list at key; ok is false when empty
func (s *Store) RPop(ctx context.Context, key string) (string, bool) {
	val, err := s.rdb.RPop(ctx, key).Result()
	if err != nil {
		s.readFailed("rpop", key, err)
		return "", false
	}
	return val, true
}

// LLen returns the length of the list at key
func (s *Store) LLen(ctx context.Context, key string) int64 {
	n, err := s.rdb.LLen(ctx, key).Result()
	if err != nil {
		s.readFailed("llen", key, err)
		return 0
	}
	return n
}

// LRange returns the elements of the list at key between start and stop
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) []string {
	vals, err := s.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		s.readFailed("lrange", key, err)
		return nil
	}
	return vals
}

// Eval runs a server-side script atomically.
// redis.Nil is returned as-is so callers can treat a nil reply as a value.
func (s *Store) Eval(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	return script.Run(ctx, s.rdb, keys, args...).Result()
}

// readFailed logs a failed read; a plain miss is not a failure
func (s *Store) readFailed(op, key string, err error) {
	if errors.Is(err, redis.Nil) {
		return
	}
	s.logger.Warn("cache read failed, treating as miss",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

func (s *Store) writeFailed(op, key string, err error) {
	s.logger.Error("cache write failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
