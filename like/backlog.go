package like

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/likesync/cache"
	"github.com/dailyyoga/likesync/keyspace"
	"github.com/dailyyoga/likesync/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backlog is one sample of reconciliation debt
type Backlog struct {
	Pending   int64     `json:"pending"`
	Parked    int64     `json:"parked"`
	SampledAt time.Time `json:"sampled_at"`
}

// BacklogMonitor samples the pending queue and the parked set and keeps the
// last good sample. It runs as a scheduled task.
type BacklogMonitor struct {
	rdb     redis.UniversalClient
	cfg     *BacklogConfig
	metrics *Metrics
	logger  logger.Logger

	last atomic.Pointer[Backlog]
}

func NewBacklogMonitor(log logger.Logger, cfg *BacklogConfig, store *cache.Store, metrics *Metrics) (*BacklogMonitor, error) {
	if cfg == nil {
		cfg = DefaultBacklogConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BacklogMonitor{
		rdb:     store.Client(),
		cfg:     cfg,
		metrics: metrics,
		logger:  log,
	}, nil
}

// Name implements cron.Task
func (m *BacklogMonitor) Name() string { return "backlog" }

// Run implements cron.Task
func (m *BacklogMonitor) Run(ctx context.Context) error {
	_, err := m.Sample(ctx)
	return err
}

// Get returns the last good sample; ok is false until one succeeded
func (m *BacklogMonitor) Get() (Backlog, bool) {
	b := m.last.Load()
	if b == nil {
		return Backlog{}, false
	}
	return *b, true
}

// Sample reads both sizes in one round trip, retrying with exponential
// backoff. A failed sample keeps the previous one.
func (m *BacklogMonitor) Sample(ctx context.Context) (Backlog, error) {
	backoff := m.cfg.RetryBackoff

	var err error
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		var b Backlog
		if b, err = m.sampleOnce(ctx); err == nil {
			m.last.Store(&b)
			m.metrics.backlog(b)
			return b, nil
		}

		m.logger.Warn("backlog sample failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", m.cfg.MaxRetries),
			zap.Error(err),
		)
		if attempt == m.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return Backlog{}, ErrSample(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return Backlog{}, ErrSample(err)
}

func (m *BacklogMonitor) sampleOnce(ctx context.Context) (Backlog, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	var pending *redis.IntCmd
	var parked *redis.IntCmd
	if _, err := m.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LLen(ctx, keyspace.PendingQueue)
		parked = pipe.SCard(ctx, keyspace.Parked)
		return nil
	}); err != nil {
		return Backlog{}, err
	}
	return Backlog{Pending: pending.Val(), Parked: parked.Val(), SampledAt: time.Now()}, nil
}
