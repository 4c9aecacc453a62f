package like

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dailyyoga/likesync/cache"
	"github.com/dailyyoga/likesync/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewStore(logger.Nop(), rdb), mr
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: glogger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection, one in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewRepository(db)
	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo
}

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]Notification
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, batch []Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, batch)
	return n.err
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notification
	for _, b := range n.batches {
		out = append(out, b...)
	}
	return out
}

// writerFunc is a LikeWriter for injecting failures
type writerFunc func(ctx context.Context, changes Changes, count CountSource) ([]string, error)

func (f writerFunc) ApplyLikes(ctx context.Context, changes Changes, count CountSource) ([]string, error) {
	return f(ctx, changes, count)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
