package ch

import (
	"context"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dailyyoga/likesync/logger"
	"go.uber.org/zap"
)

type defaultClient struct {
	config *Config
	logger logger.Logger
	conn   driver.Conn

	mu     sync.RWMutex
	writer Writer
	closed bool
}

// NewClient opens the pool described by config and pings it
func NewClient(config *Config, log logger.Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	} else {
		config = config.MergeDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(config.options())
	if err != nil {
		return nil, ErrConnection(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, ErrConnection(err)
	}

	log.Info("clickhouse client initialized",
		zap.Strings("hosts", config.Hosts),
		zap.String("database", config.Database),
		zap.String("compression", config.Compression),
	)
	return &defaultClient{config: config, logger: log, conn: conn}, nil
}

func (c *defaultClient) Writer() (Writer, error) {
	if c.config.WriterConfig == nil {
		return nil, ErrWriterDisabled
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if c.writer == nil {
		c.writer = newWriterWithConn(c.conn, c.config, c.logger)
	}
	return c.writer, nil
}

func (c *defaultClient) Exec(ctx context.Context, query string, args ...any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}

	if err := c.conn.Exec(ctx, query, args...); err != nil {
		return ErrExec(err)
	}
	return nil
}

func (c *defaultClient) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.conn.Ping(ctx)
}

func (c *defaultClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			c.logger.Error("failed to close clickhouse writer", zap.Error(err))
		}
	}
	if err := c.conn.Close(); err != nil {
		return ErrConnection(err)
	}
	c.logger.Info("clickhouse client closed")
	return nil
}
