package like

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dailyyoga/likesync/cache"
	"github.com/dailyyoga/likesync/keyspace"
	"github.com/dailyyoga/likesync/lock"
	"github.com/dailyyoga/likesync/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcileEnv struct {
	store    *cache.Store
	mr       *miniredis.Miniredis
	repo     *Repository
	toggler  *Toggler
	notifier *recordingNotifier
	metrics  *Metrics
}

func newReconcileEnv(t *testing.T) *reconcileEnv {
	t.Helper()
	store, mr := newTestStore(t)
	return &reconcileEnv{
		store:    store,
		mr:       mr,
		repo:     newTestRepository(t),
		toggler:  NewToggler(logger.Nop(), store, nil),
		notifier: &recordingNotifier{},
		metrics:  newTestMetrics(t),
	}
}

func (e *reconcileEnv) reconciler(t *testing.T, cfg *ReconcilerConfig, writer LikeWriter) *Reconciler {
	t.Helper()
	if writer == nil {
		writer = e.repo
	}
	r, err := NewReconciler(logger.Nop(), cfg, e.store, writer, e.repo, e.notifier,
		WithMetrics(e.metrics), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return r
}

func (e *reconcileEnv) tweet(t *testing.T, id, owner string) {
	t.Helper()
	require.NoError(t, e.repo.CreateTweet(context.Background(), &Tweet{ID: id, UserID: owner, Content: "hi"}))
}

func (e *reconcileEnv) toggle(t *testing.T, user, tweet string) Result {
	t.Helper()
	res, err := e.toggler.Toggle(context.Background(), user, tweet)
	require.NoError(t, err)
	return res
}

func (e *reconcileEnv) queue(t *testing.T) []string {
	t.Helper()
	if !e.mr.Exists(keyspace.PendingQueue) {
		return nil
	}
	items, err := e.mr.List(keyspace.PendingQueue)
	require.NoError(t, err)
	return items
}

func TestReconcile_LikeIsPersistedAndNotified(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	r := env.reconciler(t, nil, nil)
	ctx := context.Background()

	assert.Equal(t, Result{Status: StatusLike, LikeCount: 1}, env.toggle(t, "U1", "E1"))

	assert.Equal(t, OutcomeCommitted, r.ReconcileNext(ctx))
	r.Wait()

	users, err := env.repo.LikedBy(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, users)

	count, err := env.repo.LikeCount(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, []Notification{{
		Type:      NotificationTypeLike,
		Actor:     "U1",
		Recipient: "O1",
		Subject:   "E1",
		CreatedAt: fixedNow,
	}}, env.notifier.all())

	assert.False(t, env.mr.Exists(keyspace.Tweet("E1").Key(keyspace.SyncStatus)))
	assert.Empty(t, env.queue(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.reconciles.WithLabelValues(OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.notifications.WithLabelValues("sent")))
}

func TestReconcile_LikeThenUnlikeBeforeDrain(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	r := env.reconciler(t, nil, nil)
	ctx := context.Background()

	env.toggle(t, "U1", "E1")
	env.toggle(t, "U1", "E1")
	assert.Equal(t, "0", env.mr.HGet(keyspace.Tweet("E1").Key(keyspace.SyncStatus), "U1"))

	// two toggles queued the tweet twice; the second entry finds nothing
	assert.Equal(t, OutcomeCommitted, r.ReconcileNext(ctx))
	assert.Equal(t, OutcomeNoop, r.ReconcileNext(ctx))
	assert.Equal(t, OutcomeEmpty, r.ReconcileNext(ctx))
	r.Wait()

	users, err := env.repo.LikedBy(ctx, "E1")
	require.NoError(t, err)
	assert.Empty(t, users)
	count, err := env.repo.LikeCount(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Empty(t, env.notifier.all())
}

func TestReconcile_UnlikeRemovesExistingEdge(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	r := env.reconciler(t, nil, nil)
	ctx := context.Background()

	env.toggle(t, "U1", "E1")
	env.toggle(t, "U2", "E1")
	require.Equal(t, OutcomeCommitted, r.ReconcileNext(ctx))

	env.toggle(t, "U1", "E1")
	for r.ReconcileNext(ctx) != OutcomeEmpty {
	}
	r.Wait()

	users, err := env.repo.LikedBy(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U2"}, users)
	count, err := env.repo.LikeCount(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	// only the first drain created edges
	assert.Len(t, env.notifier.all(), 2)
}

func TestReconcile_SelfLikeIsNotNotified(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	r := env.reconciler(t, nil, nil)

	env.toggle(t, "O1", "E1")
	assert.Equal(t, OutcomeCommitted, r.ReconcileNext(context.Background()))
	r.Wait()

	users, err := env.repo.LikedBy(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"O1"}, users)
	assert.Empty(t, env.notifier.all())
}

func TestApplyLikes_Idempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateTweet(ctx, &Tweet{ID: "E1", UserID: "O1"}))

	changes := Changes{TweetID: "E1", Liked: []string{"U1", "U2"}, Unliked: []string{"U3"}}
	count := func(context.Context) (int64, bool) { return 2, true }

	newly, err := repo.ApplyLikes(ctx, changes, count)
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, newly)

	var first []Like
	require.NoError(t, repo.db.Order("user_id").Find(&first).Error)

	newly, err = repo.ApplyLikes(ctx, changes, count)
	require.NoError(t, err)
	assert.Empty(t, newly)

	var second []Like
	require.NoError(t, repo.db.Order("user_id").Find(&second).Error)
	assert.Equal(t, first, second)

	n, err := repo.LikeCount(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestApplyLikes_CountsEdgesWithoutCacheCounter(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateTweet(ctx, &Tweet{ID: "E1", UserID: "O1"}))

	missing := func(context.Context) (int64, bool) { return 0, false }
	_, err := repo.ApplyLikes(ctx, Changes{TweetID: "E1", Liked: []string{"U1", "U2", "U3"}}, missing)
	require.NoError(t, err)

	n, err := repo.LikeCount(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRepository_OwnerOf(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateTweet(ctx, &Tweet{ID: "E1", UserID: "O1"}))

	owner, err := repo.OwnerOf(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, "O1", owner)

	_, err = repo.OwnerOf(ctx, "nope")
	assert.ErrorIs(t, err, ErrTweetNotFound)
	_, err = repo.LikeCount(ctx, "nope")
	assert.ErrorIs(t, err, ErrTweetNotFound)
}

func TestReconcile_FailureRequeuesAndRestores(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	failing := writerFunc(func(context.Context, Changes, CountSource) ([]string, error) {
		return nil, errors.New("database unavailable")
	})
	r := env.reconciler(t, nil, failing)
	ctx := context.Background()
	g := keyspace.Tweet("E1")

	env.toggle(t, "U1", "E1")
	assert.Equal(t, OutcomeFailed, r.ReconcileNext(ctx))

	assert.Equal(t, []string{"E1"}, env.queue(t))
	assert.Equal(t, "1", env.mr.HGet(g.Key(keyspace.SyncStatus), "U1"))
	assert.Equal(t, "1", env.mr.HGet(keyspace.Attempts, "E1"))

	// the retry against a healthy store notifies the user whose status survived
	healthy := env.reconciler(t, nil, nil)
	assert.Equal(t, OutcomeCommitted, healthy.ReconcileNext(ctx))
	healthy.Wait()
	assert.Len(t, env.notifier.all(), 1)
	assert.False(t, env.mr.Exists(keyspace.Attempts))
}

func TestReconcile_RestoreKeepsNewerToggle(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	g := keyspace.Tweet("E1")
	ctx := context.Background()

	env.toggle(t, "U1", "E1")
	env.toggle(t, "U2", "E1")

	// U1 unlikes while the transaction for the drained batch is running
	failing := writerFunc(func(context.Context, Changes, CountSource) ([]string, error) {
		env.toggle(t, "U1", "E1")
		return nil, errors.New("deadlock")
	})
	r := env.reconciler(t, nil, failing)

	assert.Equal(t, OutcomeFailed, r.ReconcileNext(ctx))
	assert.Equal(t, "0", env.mr.HGet(g.Key(keyspace.SyncStatus), "U1"))
	assert.Equal(t, "1", env.mr.HGet(g.Key(keyspace.SyncStatus), "U2"))
}

func TestReconcile_ParksAfterMaxAttempts(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	failing := writerFunc(func(context.Context, Changes, CountSource) ([]string, error) {
		return nil, errors.New("constraint violation")
	})
	r := env.reconciler(t, &ReconcilerConfig{MaxAttempts: 2}, failing)
	ctx := context.Background()

	env.toggle(t, "U1", "E1")
	assert.Equal(t, OutcomeFailed, r.ReconcileNext(ctx))
	assert.Equal(t, OutcomeParked, r.ReconcileNext(ctx))
	assert.Equal(t, OutcomeEmpty, r.ReconcileNext(ctx))

	assert.Empty(t, env.queue(t))
	assert.Equal(t, []string{"E1"}, r.Parked(ctx))
	assert.Equal(t, "1", env.mr.HGet(keyspace.Tweet("E1").Key(keyspace.SyncStatus), "U1"))

	n, err := r.RequeueParked(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"E1"}, env.queue(t))
	assert.Empty(t, r.Parked(ctx))
	assert.Equal(t, "", env.mr.HGet(keyspace.Attempts, "E1"))

	healthy := env.reconciler(t, nil, nil)
	assert.Equal(t, OutcomeCommitted, healthy.ReconcileNext(ctx))
	healthy.Wait()
	users, err := env.repo.LikedBy(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, users)
}

func TestReconcile_RequeueParkedIsExclusive(t *testing.T) {
	env := newReconcileEnv(t)
	r := env.reconciler(t, nil, nil)
	ctx := context.Background()

	env.mr.SAdd(keyspace.Parked, "E1")
	locker := lock.NewPessimistic(logger.Nop(), env.store)
	require.True(t, locker.Acquire(ctx, keyspace.LockKey("parked-requeue"), "operator-a", time.Minute))

	n, err := r.RequeueParked(ctx)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
	assert.Zero(t, n)
	assert.Equal(t, []string{"E1"}, r.Parked(ctx))
}

func TestReconcile_MissingTweetIsDropped(t *testing.T) {
	env := newReconcileEnv(t)
	r := env.reconciler(t, nil, nil)
	ctx := context.Background()

	env.toggle(t, "U1", "E404")
	env.mr.HSet(keyspace.Attempts, "E404", "3")

	assert.Equal(t, OutcomeDropped, r.ReconcileNext(ctx))
	assert.Empty(t, env.queue(t))
	assert.Equal(t, "", env.mr.HGet(keyspace.Attempts, "E404"))
	assert.Empty(t, r.Parked(ctx))
}

func TestReconcile_NotifierFailureIsCounted(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	env.notifier.err = errors.New("broker down")
	r := env.reconciler(t, nil, nil)

	env.toggle(t, "U1", "E1")
	assert.Equal(t, OutcomeCommitted, r.ReconcileNext(context.Background()))
	r.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.notifications.WithLabelValues("failed")))
	users, err := env.repo.LikedBy(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, users)
}

func TestReconcile_StatsAreShared(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	r := env.reconciler(t, nil, nil)
	ctx := context.Background()

	_, ok := r.Stats(ctx)
	assert.False(t, ok)

	env.toggle(t, "U1", "E1")
	env.toggle(t, "U1", "E404")
	for r.ReconcileNext(ctx) != OutcomeEmpty {
	}
	r.Wait()

	other := env.reconciler(t, nil, nil)
	stats, ok := other.Stats(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Committed)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Zero(t, stats.Failed)
}

func TestReconcileTask_RunsUpToCyclesPerTick(t *testing.T) {
	env := newReconcileEnv(t)
	env.tweet(t, "E1", "O1")
	env.tweet(t, "E2", "O1")
	env.tweet(t, "E3", "O1")
	r := env.reconciler(t, &ReconcilerConfig{CyclesPerTick: 2}, nil)
	ctx := context.Background()

	env.toggle(t, "U1", "E1")
	env.toggle(t, "U1", "E2")
	env.toggle(t, "U1", "E3")

	task := r.Task()
	assert.Equal(t, "reconcile", task.Name())
	require.NoError(t, task.Run(ctx))
	assert.Equal(t, []string{"E3"}, env.queue(t))

	require.NoError(t, task.Run(ctx))
	assert.Empty(t, env.queue(t))
	require.NoError(t, task.Run(ctx))
	r.Wait()
}

func TestReconcile_RunCycleOnEmptyQueue(t *testing.T) {
	env := newReconcileEnv(t)
	r := env.reconciler(t, nil, nil)
	r.RunCycle(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.reconciles.WithLabelValues(OutcomeEmpty)))
}

func TestPartition(t *testing.T) {
	changes := partition("E1", map[string]string{"U3": "1", "U1": "1", "U2": "0", "U4": "?"})
	assert.Equal(t, Changes{TweetID: "E1", Liked: []string{"U1", "U3"}, Unliked: []string{"U2"}}, changes)
}

func TestReconcilerConfig(t *testing.T) {
	cfg := (&ReconcilerConfig{}).MergeDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "@every 1s", cfg.Schedule)
	assert.Equal(t, 10, cfg.MaxAttempts)

	cfg.Schedule = "every now and then"
	assert.Error(t, cfg.Validate())

	cfg = (&ReconcilerConfig{Schedule: "*/5 * * * * *"}).MergeDefaults()
	assert.NoError(t, cfg.Validate())
}
