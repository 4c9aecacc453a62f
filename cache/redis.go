// Package cache wraps the shared Redis deployment.
//
// NewRedis builds the single connection pool of the process. Store is the
// failure-isolated facade the like engine and the locks use on top of it:
// reads degrade to misses, writes report a success flag, and atomic batches
// are scoped to one keyspace.Group so they never span shards.
package cache

import (
	"context"

	"github.com/dailyyoga/likesync/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is the shared client: the full go-redis API for a node or a cluster
type Redis interface {
	redis.UniversalClient
	// Unwrap returns the underlying go-redis client
	Unwrap() redis.UniversalClient
}

type defaultRedis struct {
	redis.UniversalClient
}

// NewRedis connects to the node or cluster described by cfg and verifies the connection
func NewRedis(log logger.Logger, cfg *RedisConfig) (Redis, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewUniversalClient(cfg.Options())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ErrConnection(err)
	}

	log.Info("redis connection established",
		zap.Strings("addrs", cfg.Addrs),
		zap.Bool("cluster", cfg.Cluster()),
		zap.Int("pool_size", cfg.PoolSize),
	)

	return &defaultRedis{UniversalClient: client}, nil
}

func (r *defaultRedis) Unwrap() redis.UniversalClient {
	return r.UniversalClient
}
