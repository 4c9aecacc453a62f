package ch

import (
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Config describes the analytics cluster the relay writes like events to
type Config struct {
	Hosts    []string `mapstructure:"hosts"`
	Database string   `mapstructure:"database"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	// default: 10s
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// block compression on the native protocol: none, lz4 or zstd
	// default: "lz4"
	Compression string `mapstructure:"compression"`
	// default: 5
	MaxOpenConns int  `mapstructure:"max_open_conns"`
	Debug        bool `mapstructure:"debug"`
	// server settings applied to every query
	Settings clickhouse.Settings `mapstructure:"settings"`
	// nil disables the writer
	WriterConfig *WriterConfig `mapstructure:"writer"`
}

type WriterConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	FlushSize     int           `mapstructure:"flush_size"`
	// MinFlushSize is the minimum batch size for a time-triggered flush.
	// 0 flushes on every interval.
	MinFlushSize int `mapstructure:"min_flush_size"`
	// MaxWaitTime forces a flush once the oldest buffered row is this old,
	// regardless of MinFlushSize. 0 waits for MinFlushSize indefinitely.
	MaxWaitTime time.Duration `mapstructure:"max_wait_time"`
	// InsertTimeout bounds one batch insert
	InsertTimeout time.Duration `mapstructure:"insert_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Database:     "default",
		DialTimeout:  10 * time.Second,
		Compression:  "lz4",
		MaxOpenConns: 5,
	}
}

// DefaultWriterConfig returns the default writer config
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		FlushInterval: 5 * time.Second,
		FlushSize:     2000,
		MinFlushSize:  100,
		MaxWaitTime:   30 * time.Second,
		InsertTimeout: 30 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults; a nil WriterConfig stays nil
func (c *Config) MergeDefaults() *Config {
	d := DefaultConfig()
	out := *c
	if out.Database == "" {
		out.Database = d.Database
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = d.DialTimeout
	}
	if out.Compression == "" {
		out.Compression = d.Compression
	}
	if out.MaxOpenConns <= 0 {
		out.MaxOpenConns = d.MaxOpenConns
	}
	if out.WriterConfig != nil {
		w := *out.WriterConfig
		dw := DefaultWriterConfig()
		if w.FlushInterval <= 0 {
			w.FlushInterval = dw.FlushInterval
		}
		if w.FlushSize <= 0 {
			w.FlushSize = dw.FlushSize
		}
		if w.InsertTimeout <= 0 {
			w.InsertTimeout = dw.InsertTimeout
		}
		out.WriterConfig = &w
	}
	return &out
}

func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return ErrInvalidConfig("hosts are required")
	}
	if c.Username == "" {
		return ErrInvalidConfig("username is required")
	}
	if _, ok := compressionMethods[c.Compression]; !ok {
		return ErrInvalidConfig("compression must be one of: none, lz4, zstd")
	}

	if c.WriterConfig != nil {
		if c.WriterConfig.FlushInterval <= 0 {
			return ErrInvalidConfig("writer.flush_interval is required")
		}
		if c.WriterConfig.FlushSize <= 0 {
			return ErrInvalidConfig("writer.flush_size is required")
		}
		if c.WriterConfig.MinFlushSize < 0 {
			return ErrInvalidConfig("writer.min_flush_size cannot be negative")
		}
		if c.WriterConfig.MinFlushSize > c.WriterConfig.FlushSize {
			return ErrInvalidConfig("writer.min_flush_size cannot be greater than writer.flush_size")
		}
		if c.WriterConfig.MaxWaitTime < 0 {
			return ErrInvalidConfig("writer.max_wait_time cannot be negative")
		}
	}
	return nil
}

var compressionMethods = map[string]clickhouse.CompressionMethod{
	"none": clickhouse.CompressionNone,
	"lz4":  clickhouse.CompressionLZ4,
	"zstd": clickhouse.CompressionZSTD,
}

func (c *Config) options() *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: c.Hosts,
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		DialTimeout:  c.DialTimeout,
		MaxOpenConns: c.MaxOpenConns,
		Debug:        c.Debug,
		Settings:     c.Settings,
	}
	if method := compressionMethods[c.Compression]; method != clickhouse.CompressionNone {
		opts.Compression = &clickhouse.Compression{Method: method}
	}
	return opts
}
