package like

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dailyyoga/likesync/cache"
	"github.com/dailyyoga/likesync/keyspace"
	"github.com/dailyyoga/likesync/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DetailsTTL is how long a patched details snapshot stays cached
const DetailsTTL = 300 * time.Second

// toggleScript flips ARGV[1] in the like set, moves the counter with a floor
// of 0 and records the new sync status. A missing or corrupt counter restarts
// from zero. Returns {liked, count}.
var toggleScript = redis.NewScript(`
local liked = redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0
local count = tonumber(redis.call('GET', KEYS[2]) or '0')
if count == nil or count ~= math.floor(count) then
	count = 0
end
if liked then
	redis.call('SADD', KEYS[1], ARGV[1])
	count = count + 1
	redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
else
	redis.call('SREM', KEYS[1], ARGV[1])
	count = math.max(count - 1, 0)
	redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
end
redis.call('SET', KEYS[2], count)
return {liked and 1 or 0, count}
`)

// Toggler flips a user's like on a tweet in the cache and queues the tweet
// for reconciliation. It never touches the system of record.
type Toggler struct {
	store   *cache.Store
	logger  logger.Logger
	metrics *Metrics
}

// NewToggler creates a Toggler over store. metrics may be nil.
func NewToggler(log logger.Logger, store *cache.Store, metrics *Metrics) *Toggler {
	return &Toggler{store: store, logger: log, metrics: metrics}
}

// Toggle likes the tweet when the user has not liked it yet and unlikes it
// otherwise. The membership flip, the counter and the sync status change in
// one server-side script, so concurrent toggles on the same tweet serialize
// instead of aborting each other.
func (t *Toggler) Toggle(ctx context.Context, userID, tweetID string) (Result, error) {
	if userID == "" || tweetID == "" {
		return Result{}, ErrInvalidArgument
	}
	group := keyspace.Tweet(tweetID)

	reply, err := t.store.EvalGroup(ctx, group, toggleScript,
		[]string{keyspace.LikeSet, keyspace.LikeCount, keyspace.SyncStatus},
		userID, StatusLike.syncValue(), StatusUnlike.syncValue(),
	)
	if err != nil {
		return Result{}, ErrToggle(tweetID, err)
	}
	res, err := parseToggleReply(reply)
	if err != nil {
		return Result{}, ErrToggle(tweetID, err)
	}

	t.patchSnapshot(ctx, group, userID)

	if !t.store.LPush(ctx, keyspace.PendingQueue, tweetID) {
		t.logger.Error("pending queue push failed, tweet waits for its next toggle",
			zap.String("tweet_id", tweetID),
			zap.String("user_id", userID),
		)
	}

	t.metrics.toggled(res.Status)
	return res, nil
}

func parseToggleReply(reply any) (Result, error) {
	vals, ok := reply.([]any)
	if !ok || len(vals) != 2 {
		return Result{}, fmt.Errorf("unexpected toggle reply %v", reply)
	}
	liked, ok1 := vals[0].(int64)
	count, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return Result{}, fmt.Errorf("unexpected toggle reply %v", reply)
	}
	if liked == 1 {
		return Result{Status: StatusLike, LikeCount: count}, nil
	}
	return Result{Status: StatusUnlike, LikeCount: count}, nil
}

// patchSnapshot rewrites the cached details with the current count and the
// user's current membership. The snapshot is watched, so two patches never
// both start from the same old copy. Best effort: when the patch keeps losing
// or fails, the snapshot is deleted so readers reload it.
func (t *Toggler) patchSnapshot(ctx context.Context, group keyspace.Group, userID string) {
	err := t.store.Watch(ctx, group, func(tx *cache.GroupTx) error {
		var (
			details *redis.StringCmd
			counter *redis.StringCmd
			member  *redis.BoolCmd
		)
		tx.Read(func(r *cache.Reader) {
			details = r.Get(keyspace.Details)
			counter = r.Get(keyspace.LikeCount)
			member = r.SIsMember(keyspace.LikeSet, userID)
		})
		if errors.Is(details.Err(), redis.Nil) {
			return nil
		}
		if err := errors.Join(details.Err(), member.Err()); err != nil {
			return snapshotReadError{err}
		}
		count, _ := counter.Int64()

		res := Result{Status: StatusUnlike, LikeCount: count}
		if member.Val() {
			res.Status = StatusLike
		}
		patched, err := patchDetails([]byte(details.Val()), userID, res)
		if err != nil {
			return snapshotReadError{err}
		}
		return tx.Commit(func(b *cache.Batch) error {
			b.Set(keyspace.Details, patched, DetailsTTL)
			return nil
		})
	}, keyspace.Details)

	var readErr snapshotReadError
	switch {
	case err == nil:
	case errors.As(err, &readErr):
		// an unreadable snapshot is left to expire
		t.logger.Warn("details snapshot unusable, skipping patch",
			zap.String("group", group.String()),
			zap.Error(readErr.err),
		)
	default:
		t.logger.Warn("details snapshot patch failed, dropping snapshot",
			zap.String("group", group.String()),
			zap.Error(err),
		)
		if !t.store.Del(ctx, group.Key(keyspace.Details)) {
			t.logger.Error("details snapshot drop failed", zap.String("group", group.String()))
		}
	}
}

type snapshotReadError struct{ err error }

func (e snapshotReadError) Error() string { return e.err.Error() }

// patchDetails sets like_count and adds or removes userID in likes, keeping
// every other field of the snapshot as is
func patchDetails(raw []byte, userID string, res Result) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}

	var likes []string
	if v, ok := doc["likes"]; ok {
		if err := json.Unmarshal(v, &likes); err != nil {
			return nil, err
		}
	}

	kept := likes[:0]
	for _, id := range likes {
		if id != userID {
			kept = append(kept, id)
		}
	}
	if res.Status == StatusLike {
		kept = append(kept, userID)
	}
	if kept == nil {
		kept = []string{}
	}

	count, err := json.Marshal(res.LikeCount)
	if err != nil {
		return nil, err
	}
	list, err := json.Marshal(kept)
	if err != nil {
		return nil, err
	}
	doc["like_count"] = count
	doc["likes"] = list
	return json.Marshal(doc)
}
