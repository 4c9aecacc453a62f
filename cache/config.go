package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings of the shared cache.
// A single address connects to one node; several addresses connect to a cluster.
type RedisConfig struct {
	// Addrs are the host:port addresses of the node or cluster seeds
	// default: []string{"localhost:6379"}
	Addrs []string `mapstructure:"addrs"`
	// Username for ACL authentication (Redis 6+)
	Username string `mapstructure:"username"`
	// Password for AUTH
	Password string `mapstructure:"password"`
	// DB is the logical database, must be 0 in cluster mode
	DB int `mapstructure:"db"`
	// PoolSize is the maximum number of socket connections per node
	// default: 10
	PoolSize int `mapstructure:"pool_size"`
	// MinIdleConns is the minimum number of idle connections
	MinIdleConns int `mapstructure:"min_idle_conns"`
	// MaxRetries before giving up on a command
	// default: 3
	MaxRetries int `mapstructure:"max_retries"`
	// DialTimeout for establishing new connections
	// default: 5s
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// ReadTimeout for socket reads
	// default: 3s
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout for socket writes
	// default: 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultRedisConfig returns the default configuration for the cache client
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addrs:        []string{"localhost:6379"},
		PoolSize:     10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults and returns the config
func (c *RedisConfig) MergeDefaults() *RedisConfig {
	defaults := DefaultRedisConfig()
	if len(c.Addrs) == 0 {
		c.Addrs = defaults.Addrs
	}
	if c.PoolSize == 0 {
		c.PoolSize = defaults.PoolSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	return c
}

// Validate validates the configuration
func (c *RedisConfig) Validate() error {
	if len(c.Addrs) == 0 {
		return ErrInvalidConfig("addrs are required")
	}
	for _, addr := range c.Addrs {
		if addr == "" {
			return ErrInvalidConfig("addrs must not contain empty values")
		}
	}
	if c.DB < 0 {
		return ErrInvalidConfig("db cannot be negative")
	}
	if c.DB != 0 && c.Cluster() {
		return ErrInvalidConfig("db must be 0 in cluster mode")
	}
	if c.PoolSize < 0 {
		return ErrInvalidConfig("pool_size cannot be negative")
	}
	if c.MinIdleConns < 0 {
		return ErrInvalidConfig("min_idle_conns cannot be negative")
	}
	if c.MaxRetries < 0 {
		return ErrInvalidConfig("max_retries cannot be negative")
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return ErrInvalidConfig("timeouts cannot be negative")
	}
	return nil
}

// Cluster reports whether the config targets a cluster
func (c *RedisConfig) Cluster() bool {
	return len(c.Addrs) > 1
}

// Options converts the config to go-redis universal options
func (c *RedisConfig) Options() *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:        c.Addrs,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}
