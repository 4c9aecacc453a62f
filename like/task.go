package like

import (
	"context"

	"github.com/dailyyoga/likesync/cron"
)

// ReconcileTask runs up to CyclesPerTick reconciliation cycles per tick and
// stops early once the queue is empty
type ReconcileTask struct {
	r *Reconciler
}

// Task returns the reconciler as a scheduled task
func (r *Reconciler) Task() cron.Task {
	return &ReconcileTask{r: r}
}

func (t *ReconcileTask) Name() string { return "reconcile" }

func (t *ReconcileTask) Run(ctx context.Context) error {
	for i := 0; i < t.r.cfg.CyclesPerTick; i++ {
		if ctx.Err() != nil {
			return nil
		}
		if t.r.ReconcileNext(ctx) == OutcomeEmpty {
			return nil
		}
	}
	return nil
}

// Schedule is the cron spec the reconcile chain runs on
func (r *Reconciler) Schedule() string {
	return r.cfg.Schedule
}
