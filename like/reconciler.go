package like

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dailyyoga/likesync/cache"
	"github.com/dailyyoga/likesync/keyspace"
	"github.com/dailyyoga/likesync/lock"
	"github.com/dailyyoga/likesync/logger"
	"github.com/dailyyoga/likesync/routine"
	"go.uber.org/zap"
)

// parkedRequeueLock serializes operators replaying the parked set
var parkedRequeueLock = keyspace.LockKey("parked-requeue")

// Reconciler drains pending toggles from the cache into the system of record,
// one tweet per cycle. Workers in different processes can run side by side:
// the queue pop hands each tweet to exactly one of them.
type Reconciler struct {
	cfg      *ReconcilerConfig
	store    *cache.Store
	writer   LikeWriter
	lookup   TweetLookup
	notifier Notifier
	locker   *lock.Pessimistic
	stats    *StatsRecorder
	metrics  *Metrics
	runner   routine.Runner
	logger   logger.Logger
	now      func() time.Time
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithMetrics records cycle outcomes in m
func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock replaces time.Now for notification timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a Reconciler. A nil cfg takes the defaults and the
// config is validated.
func NewReconciler(
	log logger.Logger,
	cfg *ReconcilerConfig,
	store *cache.Store,
	writer LikeWriter,
	lookup TweetLookup,
	notifier Notifier,
	opts ...Option,
) (*Reconciler, error) {
	if cfg == nil {
		cfg = DefaultReconcilerConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Reconciler{
		cfg:      cfg,
		store:    store,
		writer:   writer,
		lookup:   lookup,
		notifier: notifier,
		locker:   lock.NewPessimistic(log, store),
		stats:    NewStatsRecorder(log, store),
		runner:   routine.New(log),
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunCycle reconciles at most one pending tweet. Errors are handled and
// logged inside; nothing is returned to the scheduler.
func (r *Reconciler) RunCycle(ctx context.Context) {
	r.ReconcileNext(ctx)
}

// ReconcileNext reconciles at most one pending tweet and reports the outcome
func (r *Reconciler) ReconcileNext(ctx context.Context) string {
	start := time.Now()
	outcome := r.reconcileNext(ctx)

	r.metrics.reconciled(outcome, time.Since(start))
	r.stats.Record(context.WithoutCancel(ctx), outcome)
	return outcome
}

func (r *Reconciler) reconcileNext(ctx context.Context) string {
	tweetID, ok := r.store.RPop(ctx, keyspace.PendingQueue)
	if !ok {
		return OutcomeEmpty
	}
	group := keyspace.Tweet(tweetID)

	// the hash is read and removed in one step: toggles landing from here on
	// build up a fresh hash for the next cycle
	statuses, err := r.store.HDrain(ctx, group, keyspace.SyncStatus)
	if err != nil {
		r.logger.Error("sync status drain failed", zap.String("tweet_id", tweetID), zap.Error(err))
		r.requeue(context.WithoutCancel(ctx), tweetID)
		return OutcomeFailed
	}
	if len(statuses) == 0 {
		// duplicate queue entry, already drained
		return OutcomeNoop
	}

	changes := partition(tweetID, statuses)

	owner, err := r.lookup.OwnerOf(ctx, tweetID)
	if errors.Is(err, ErrTweetNotFound) {
		r.logger.Warn("tweet no longer exists, dropping pending likes",
			zap.String("tweet_id", tweetID),
			zap.Int("liked", len(changes.Liked)),
			zap.Int("unliked", len(changes.Unliked)),
		)
		r.store.HDel(context.WithoutCancel(ctx), keyspace.Attempts, tweetID)
		return OutcomeDropped
	}
	if err != nil {
		return r.fail(ctx, group, tweetID, statuses, err)
	}

	txCtx, cancel := context.WithTimeout(ctx, r.cfg.TxTimeout)
	newlyLiked, err := r.writer.ApplyLikes(txCtx, changes, func(ctx context.Context) (int64, bool) {
		return r.store.GetInt(ctx, group.Key(keyspace.LikeCount))
	})
	cancel()
	if err != nil {
		return r.fail(ctx, group, tweetID, statuses, err)
	}

	r.store.HDel(ctx, keyspace.Attempts, tweetID)
	r.dispatch(owner, tweetID, newlyLiked)

	r.logger.Info("tweet reconciled",
		zap.String("tweet_id", tweetID),
		zap.Int("liked", len(changes.Liked)),
		zap.Int("unliked", len(changes.Unliked)),
		zap.Int("new_edges", len(newlyLiked)),
	)
	return OutcomeCommitted
}

// fail puts the drained statuses back and requeues the tweet, or parks it
// once it has failed MaxAttempts times
func (r *Reconciler) fail(ctx context.Context, group keyspace.Group, tweetID string, statuses map[string]string, cause error) string {
	// the cycle may have failed because ctx ended; the cleanup must still land
	ctx = context.WithoutCancel(ctx)

	r.logger.Error("reconciliation failed",
		zap.String("tweet_id", tweetID),
		zap.Error(cause),
	)
	r.restore(ctx, group, statuses)

	attempts, ok := r.store.HIncrBy(ctx, keyspace.Attempts, tweetID, 1)
	if ok && attempts >= int64(r.cfg.MaxAttempts) {
		if r.store.SAdd(ctx, keyspace.Parked, tweetID) {
			r.logger.Error("tweet parked after repeated reconciliation failures",
				zap.String("tweet_id", tweetID),
				zap.Int64("attempts", attempts),
			)
			return OutcomeParked
		}
	}

	r.requeue(ctx, tweetID)
	return OutcomeFailed
}

// restore writes drained statuses back; a user who toggled again since the
// drain already has a newer field, which HSETNX leaves alone
func (r *Reconciler) restore(ctx context.Context, group keyspace.Group, statuses map[string]string) {
	key := group.Key(keyspace.SyncStatus)
	for userID, value := range statuses {
		r.store.HSetNX(ctx, key, userID, value)
	}
}

func (r *Reconciler) requeue(ctx context.Context, tweetID string) {
	if !r.store.LPush(ctx, keyspace.PendingQueue, tweetID) {
		r.logger.Error("requeue failed, tweet waits for its next toggle", zap.String("tweet_id", tweetID))
	}
}

// dispatch hands notifications for new edges to the notifier in the
// background; self-likes notify nobody
func (r *Reconciler) dispatch(owner, tweetID string, newlyLiked []string) {
	batch := make([]Notification, 0, len(newlyLiked))
	now := r.now()
	for _, userID := range newlyLiked {
		if userID == owner {
			continue
		}
		batch = append(batch, Notification{
			Type:      NotificationTypeLike,
			Actor:     userID,
			Recipient: owner,
			Subject:   tweetID,
			CreatedAt: now,
		})
	}
	if len(batch) == 0 {
		return
	}

	r.runner.GoNamedWithContext(context.Background(), "like-notify", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, r.cfg.NotifyTimeout)
		defer cancel()

		err := r.notifier.Notify(ctx, batch)
		failed := failedCount(err, len(batch))
		r.metrics.notified(len(batch)-failed, failed)
		if err != nil {
			r.logger.Error("like notifications not delivered",
				zap.String("tweet_id", tweetID),
				zap.Int("failed", failed),
				zap.Error(err),
			)
		}
	})
}

// Wait blocks until background notification dispatches have finished
func (r *Reconciler) Wait() {
	r.runner.Wait()
}

// Parked lists the tweets parked after exhausting their attempts
func (r *Reconciler) Parked(ctx context.Context) []string {
	parked := r.store.SMembers(ctx, keyspace.Parked)
	sort.Strings(parked)
	return parked
}

// RequeueParked moves every parked tweet back onto the pending queue with a
// fresh attempt budget. Only one caller at a time; others get
// lock.ErrNotAcquired.
func (r *Reconciler) RequeueParked(ctx context.Context) (int, error) {
	requeued := 0
	err := r.locker.WithLock(ctx, parkedRequeueLock, r.cfg.RequeueLockTTL, func(ctx context.Context) error {
		for _, tweetID := range r.store.SMembers(ctx, keyspace.Parked) {
			if !r.store.LPush(ctx, keyspace.PendingQueue, tweetID) {
				return ErrRequeue(tweetID)
			}
			r.store.HDel(ctx, keyspace.Attempts, tweetID)
			r.store.SRem(ctx, keyspace.Parked, tweetID)
			requeued++
		}
		return nil
	})
	if requeued > 0 {
		r.logger.Info("parked tweets requeued", zap.Int("count", requeued))
	}
	return requeued, err
}

// Stats returns the shared reconciliation totals
func (r *Reconciler) Stats(ctx context.Context) (ReconcileStats, bool) {
	return r.stats.Snapshot(ctx)
}

// partition splits drained statuses into final liked and unliked users
func partition(tweetID string, statuses map[string]string) Changes {
	changes := Changes{TweetID: tweetID}
	for userID, value := range statuses {
		switch value {
		case syncLiked:
			changes.Liked = append(changes.Liked, userID)
		case syncUnliked:
			changes.Unliked = append(changes.Unliked, userID)
		}
	}
	sort.Strings(changes.Liked)
	sort.Strings(changes.Unliked)
	return changes
}
