// Package config loads the likesync process configuration from a YAML file.
//
// The file is decoded into a generic map first and then into Config through
// mapstructure, so every component keeps its own mapstructure-tagged config
// struct and its own defaults.
package config

import (
	"os"

	"github.com/dailyyoga/likesync/cache"
	"github.com/dailyyoga/likesync/ch"
	"github.com/dailyyoga/likesync/db"
	"github.com/dailyyoga/likesync/kafka"
	"github.com/dailyyoga/likesync/like"
	"github.com/dailyyoga/likesync/logger"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration of a likesync process
type Config struct {
	Logger     *logger.Config         `mapstructure:"logger"`
	Redis      *cache.RedisConfig     `mapstructure:"redis"`
	Database   *db.Config             `mapstructure:"database"`
	Kafka      KafkaConfig            `mapstructure:"kafka"`
	ClickHouse *ch.Config             `mapstructure:"clickhouse"`
	Reconciler *like.ReconcilerConfig `mapstructure:"reconciler"`
	Backlog    *like.BacklogConfig    `mapstructure:"backlog"`

	// MetricsAddr is where the worker serves /metrics; "-" disables it
	// default: ":9090"
	MetricsAddr string `mapstructure:"metrics_addr"`

	// NotificationTopic receives like notifications
	// default: "like-notifications"
	NotificationTopic string `mapstructure:"notification_topic"`
}

// KafkaConfig groups both kafka clients. A nil Producer makes the worker log
// notifications instead of publishing them; a nil Consumer disables the relay.
type KafkaConfig struct {
	Producer *kafka.ProducerConfig `mapstructure:"producer"`
	Consumer *kafka.ConsumerConfig `mapstructure:"consumer"`
}

// Default returns a configuration for a local single-node setup
func Default() *Config {
	return &Config{
		Logger:            logger.DefaultConfig(),
		Redis:             cache.DefaultRedisConfig(),
		Database:          db.DefaultConfig(),
		Reconciler:        like.DefaultReconcilerConfig(),
		Backlog:           like.DefaultBacklogConfig(),
		MetricsAddr:       ":9090",
		NotificationTopic: "like-notifications",
	}
}

// Load reads path, expands ${VAR} references from the environment and
// decodes the result. Missing sections take their defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrReadFile(path, err)
	}
	return Parse([]byte(os.ExpandEnv(string(raw))))
}

// Parse decodes YAML content into a Config with defaults merged in
func Parse(content []byte) (*Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, ErrDecode(err)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
		Result:           cfg,
	})
	if err != nil {
		return nil, ErrDecode(err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, ErrDecode(err)
	}
	return cfg.MergeDefaults(), nil
}

// MergeDefaults fills missing sections and zero fields with defaults.
// ClickHouse and both kafka clients stay nil when absent.
func (c *Config) MergeDefaults() *Config {
	d := Default()
	if c.Logger == nil {
		c.Logger = d.Logger
	} else {
		c.Logger = c.Logger.MergeDefaults()
	}
	if c.Redis == nil {
		c.Redis = d.Redis
	} else {
		c.Redis = c.Redis.MergeDefaults()
	}
	if c.Database == nil {
		c.Database = d.Database
	} else {
		c.Database = c.Database.MergeDefaults()
	}
	if c.Reconciler == nil {
		c.Reconciler = d.Reconciler
	} else {
		c.Reconciler = c.Reconciler.MergeDefaults()
	}
	if c.Backlog == nil {
		c.Backlog = d.Backlog
	} else {
		c.Backlog = c.Backlog.MergeDefaults()
	}
	if c.Kafka.Producer != nil {
		c.Kafka.Producer = c.Kafka.Producer.MergeDefaults()
	}
	if c.Kafka.Consumer != nil {
		c.Kafka.Consumer = c.Kafka.Consumer.MergeDefaults()
	}
	if c.ClickHouse != nil {
		c.ClickHouse = c.ClickHouse.MergeDefaults()
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = d.MetricsAddr
	}
	if c.NotificationTopic == "" {
		c.NotificationTopic = d.NotificationTopic
	}
	return c
}

// Validate checks the sections every command needs. Connection sections are
// validated by their constructors.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return ErrInvalid("logger", err)
	}
	if err := c.Reconciler.Validate(); err != nil {
		return ErrInvalid("reconciler", err)
	}
	if err := c.Backlog.Validate(); err != nil {
		return ErrInvalid("backlog", err)
	}
	return nil
}
