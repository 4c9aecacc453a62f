package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ConsumerConfig is the configuration for the notification relay consumer
type ConsumerConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topics  []string `mapstructure:"topics"`

	// handler attempts per message before the message is skipped
	// default: 3
	MaxRetries int `mapstructure:"max_retries"`

	// pause between handler attempts, doubled after each failure
	// default: 200ms
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// parallel consumer instances in the same group
	// default: 1
	InstanceNum int `mapstructure:"instance_num"`

	// "earliest" or "latest", used when the group has no committed offset
	// default: "earliest"
	AutoOffsetReset string `mapstructure:"auto_offset_reset"`

	// offsets are committed after the handler succeeded unless this is set
	// default: false
	EnableAutoCommit   bool          `mapstructure:"enable_auto_commit"`
	AutoCommitInterval time.Duration `mapstructure:"auto_commit_interval"`

	// how long a single Poll blocks; bounds shutdown latency
	// default: 100ms
	PollTimeout time.Duration `mapstructure:"poll_timeout"`

	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
	MaxPollInterval time.Duration `mapstructure:"max_poll_interval"`

	// only PLAINTEXT is supported for now
	SecurityProtocol string `mapstructure:"security_protocol"`

	Debug bool `mapstructure:"debug"`
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		MaxRetries:         3,
		RetryBackoff:       200 * time.Millisecond,
		InstanceNum:        1,
		AutoOffsetReset:    "earliest",
		AutoCommitInterval: 5 * time.Second,
		PollTimeout:        100 * time.Millisecond,
		SessionTimeout:     30 * time.Second,
		MaxPollInterval:    120 * time.Second,
		SecurityProtocol:   "PLAINTEXT",
	}
}

// MergeDefaults fills zero values with defaults
func (c *ConsumerConfig) MergeDefaults() *ConsumerConfig {
	d := DefaultConsumerConfig()
	out := *c
	if out.MaxRetries <= 0 {
		out.MaxRetries = d.MaxRetries
	}
	if out.RetryBackoff <= 0 {
		out.RetryBackoff = d.RetryBackoff
	}
	if out.InstanceNum <= 0 {
		out.InstanceNum = d.InstanceNum
	}
	if out.AutoOffsetReset == "" {
		out.AutoOffsetReset = d.AutoOffsetReset
	}
	if out.AutoCommitInterval <= 0 {
		out.AutoCommitInterval = d.AutoCommitInterval
	}
	if out.PollTimeout <= 0 {
		out.PollTimeout = d.PollTimeout
	}
	if out.SessionTimeout <= 0 {
		out.SessionTimeout = d.SessionTimeout
	}
	if out.MaxPollInterval <= 0 {
		out.MaxPollInterval = d.MaxPollInterval
	}
	if out.SecurityProtocol == "" {
		out.SecurityProtocol = d.SecurityProtocol
	}
	return &out
}

func (c *ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrInvalidConfig("brokers are required")
	}
	if c.GroupID == "" {
		return ErrInvalidConfig("group_id is required")
	}
	if len(c.Topics) == 0 {
		return ErrInvalidConfig("topics are required")
	}
	if c.AutoOffsetReset != "earliest" && c.AutoOffsetReset != "latest" {
		return ErrInvalidConfig(
			fmt.Sprintf("invalid auto_offset_reset: %s, must be either 'earliest' or 'latest'", c.AutoOffsetReset),
		)
	}
	if c.EnableAutoCommit && c.AutoCommitInterval <= 0 {
		return ErrInvalidConfig("auto_commit_interval must be greater than 0 when enable_auto_commit is true")
	}
	if c.SessionTimeout <= 0 {
		return ErrInvalidConfig("session_timeout must be greater than 0")
	}
	if c.MaxPollInterval <= 0 {
		return ErrInvalidConfig("max_poll_interval must be greater than 0")
	}
	return nil
}

func (c *ConsumerConfig) BuildConfigMap() *kafka.ConfigMap {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":    strings.Join(c.Brokers, ","),
		"group.id":             c.GroupID,
		"auto.offset.reset":    strings.ToLower(c.AutoOffsetReset),
		"enable.auto.commit":   c.EnableAutoCommit,
		"session.timeout.ms":   int(c.SessionTimeout.Milliseconds()),
		"max.poll.interval.ms": int(c.MaxPollInterval.Milliseconds()),
		"security.protocol":    c.SecurityProtocol,
	}

	if c.EnableAutoCommit {
		_ = configMap.SetKey("auto.commit.interval.ms", int(c.AutoCommitInterval.Milliseconds()))
	}
	if c.Debug {
		_ = configMap.SetKey("debug", "consumer,cgrp,topic,fetch")
	}
	return configMap
}

// ProducerConfig is the configuration for the notification producer
type ProducerConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`

	// "all" waits for every in-sync replica; notifications are at-least-once
	// so anything weaker only trades durability for latency
	// default: "all"
	Acks string `mapstructure:"acks"`

	// none, gzip, snappy, lz4, zstd
	// default: "none"
	Compression string `mapstructure:"compression"`

	// default: 5
	LingerMs int `mapstructure:"linger_ms"`

	// default: 100KB
	BatchSize int `mapstructure:"batch_size"`

	// broker acknowledgement wait per message
	// default: 10s
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`

	SecurityProtocol string `mapstructure:"security_protocol"`

	// default: 3
	MaxRetries int `mapstructure:"max_retries"`
}

func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Acks:             "all",
		Compression:      "none",
		LingerMs:         5,
		BatchSize:        100 * 1024,
		DeliveryTimeout:  10 * time.Second,
		SecurityProtocol: "PLAINTEXT",
		MaxRetries:       3,
	}
}

// MergeDefaults fills zero values with defaults
func (p *ProducerConfig) MergeDefaults() *ProducerConfig {
	d := DefaultProducerConfig()
	out := *p
	if out.Acks == "" {
		out.Acks = d.Acks
	}
	if out.Compression == "" {
		out.Compression = d.Compression
	}
	if out.LingerMs <= 0 {
		out.LingerMs = d.LingerMs
	}
	if out.BatchSize <= 0 {
		out.BatchSize = d.BatchSize
	}
	if out.DeliveryTimeout <= 0 {
		out.DeliveryTimeout = d.DeliveryTimeout
	}
	if out.SecurityProtocol == "" {
		out.SecurityProtocol = d.SecurityProtocol
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = d.MaxRetries
	}
	return &out
}

func (p *ProducerConfig) Validate() error {
	if len(p.Brokers) == 0 {
		return ErrInvalidConfig("brokers are required")
	}
	switch strings.ToLower(p.Acks) {
	case "all", "-1", "0", "1":
	default:
		return ErrInvalidConfig(fmt.Sprintf("invalid acks: %s", p.Acks))
	}
	return nil
}

func (p *ProducerConfig) BuildConfigMap() *kafka.ConfigMap {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":   strings.Join(p.Brokers, ","),
		"compression.type":    strings.ToLower(p.Compression),
		"acks":                strings.ToLower(p.Acks),
		"linger.ms":           p.LingerMs,
		"batch.size":          p.BatchSize,
		"retries":             p.MaxRetries,
		"delivery.timeout.ms": int(p.DeliveryTimeout.Milliseconds()),
		"security.protocol":   p.SecurityProtocol,
	}

	if p.ClientID != "" {
		_ = configMap.SetKey("client.id", p.ClientID)
	}
	return configMap
}
