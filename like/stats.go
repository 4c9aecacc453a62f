package like

import (
	"context"
	"time"

	"github.com/dailyyoga/likesync/keyspace"
	"github.com/dailyyoga/likesync/lock"
	"github.com/dailyyoga/likesync/logger"
	"go.uber.org/zap"
)

const statsUpdateAttempts = 8

// ReconcileStats are reconciliation totals shared by every worker
type ReconcileStats struct {
	Committed int64     `json:"committed"`
	Failed    int64     `json:"failed"`
	Parked    int64     `json:"parked"`
	Dropped   int64     `json:"dropped"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatsRecorder maintains ReconcileStats under an optimistic lock so
// concurrent workers never overwrite each other's increments
type StatsRecorder struct {
	values *lock.Optimistic[ReconcileStats]
	logger logger.Logger
	now    func() time.Time
}

func NewStatsRecorder(log logger.Logger, backend lock.Backend) *StatsRecorder {
	return &StatsRecorder{
		values: lock.NewOptimistic[ReconcileStats](log, backend),
		logger: log,
		now:    time.Now,
	}
}

// Record counts one cycle outcome. Empty and no-op cycles are not counted.
func (s *StatsRecorder) Record(ctx context.Context, outcome string) {
	if s == nil || outcome == OutcomeEmpty || outcome == OutcomeNoop {
		return
	}

	err := s.values.Update(ctx, keyspace.ReconcileStats, 0, statsUpdateAttempts, func(st ReconcileStats) (ReconcileStats, error) {
		switch outcome {
		case OutcomeCommitted:
			st.Committed++
		case OutcomeFailed:
			st.Failed++
		case OutcomeParked:
			st.Parked++
		case OutcomeDropped:
			st.Dropped++
		}
		st.UpdatedAt = s.now()
		return st, nil
	})
	if err != nil {
		s.logger.Warn("reconcile stats not recorded", zap.String("outcome", outcome), zap.Error(err))
	}
}

// Snapshot returns the current totals; ok is false before the first record
func (s *StatsRecorder) Snapshot(ctx context.Context) (ReconcileStats, bool) {
	v, ok := s.values.Get(ctx, keyspace.ReconcileStats)
	return v.Data, ok
}
