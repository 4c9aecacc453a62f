package like

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/likesync/keyspace"
	"github.com/dailyyoga/likesync/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggle_LikeThenUnlike(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	ctx := context.Background()
	g := keyspace.Tweet("E1")

	res, err := toggler.Toggle(ctx, "U1", "E1")
	require.NoError(t, err)
	assert.Equal(t, Result{Status: StatusLike, LikeCount: 1}, res)

	isMember, err := mr.SIsMember(g.Key(keyspace.LikeSet), "U1")
	require.NoError(t, err)
	assert.True(t, isMember)
	assert.Equal(t, "1", mr.HGet(g.Key(keyspace.SyncStatus), "U1"))

	queued, err := mr.List(keyspace.PendingQueue)
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, queued)

	res, err = toggler.Toggle(ctx, "U1", "E1")
	require.NoError(t, err)
	assert.Equal(t, Result{Status: StatusUnlike, LikeCount: 0}, res)

	isMember, err = mr.SIsMember(g.Key(keyspace.LikeSet), "U1")
	require.NoError(t, err)
	assert.False(t, isMember)
	// coalesced: the last toggle wins
	assert.Equal(t, "0", mr.HGet(g.Key(keyspace.SyncStatus), "U1"))

	count, err := mr.Get(g.Key(keyspace.LikeCount))
	require.NoError(t, err)
	assert.Equal(t, "0", count)
}

func TestToggle_TwiceRestoresState(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	ctx := context.Background()
	g := keyspace.Tweet("E1")

	mr.SAdd(g.Key(keyspace.LikeSet), "U2", "U3")
	require.NoError(t, mr.Set(g.Key(keyspace.LikeCount), "2"))

	for _, user := range []string{"U1", "U2"} {
		_, err := toggler.Toggle(ctx, user, "E1")
		require.NoError(t, err)
		_, err = toggler.Toggle(ctx, user, "E1")
		require.NoError(t, err)

		members, err := mr.Members(g.Key(keyspace.LikeSet))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"U2", "U3"}, members)
		count, err := mr.Get(g.Key(keyspace.LikeCount))
		require.NoError(t, err)
		assert.Equal(t, "2", count)
	}
}

func TestToggle_CounterNeverNegative(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	ctx := context.Background()
	g := keyspace.Tweet("E1")

	// member without a counter: the set and counter drifted apart
	mr.SAdd(g.Key(keyspace.LikeSet), "U1")

	res, err := toggler.Toggle(ctx, "U1", "E1")
	require.NoError(t, err)
	assert.Equal(t, StatusUnlike, res.Status)
	assert.Equal(t, int64(0), res.LikeCount)

	users := []string{"U1", "U2", "U3"}
	for i := 0; i < 30; i++ {
		res, err := toggler.Toggle(ctx, users[i%len(users)], "E1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.LikeCount, int64(0))
	}
}

func TestToggle_ConcurrentUsersLoseNoUpdates(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	g := keyspace.Tweet("E1")

	const users = 300
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := toggler.Toggle(context.Background(), fmt.Sprintf("U%d", i), "E1"); err != nil {
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.Zero(t, failed.Load(), "toggles on a hot tweet must not fail")

	count, err := mr.Get(g.Key(keyspace.LikeCount))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(users), count)

	members, err := mr.Members(g.Key(keyspace.LikeSet))
	require.NoError(t, err)
	assert.Len(t, members, users)
	fields, err := mr.HKeys(g.Key(keyspace.SyncStatus))
	require.NoError(t, err)
	assert.Len(t, fields, users)
}

func TestToggle_PatchesSnapshot(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	g := keyspace.Tweet("E1")

	require.NoError(t, mr.Set(g.Key(keyspace.Details),
		`{"id":"E1","content":"hello","likes":["U9"],"like_count":1}`))
	require.NoError(t, mr.Set(g.Key(keyspace.LikeCount), "1"))
	mr.SAdd(g.Key(keyspace.LikeSet), "U9")

	_, err := toggler.Toggle(context.Background(), "U1", "E1")
	require.NoError(t, err)

	raw, err := mr.Get(g.Key(keyspace.Details))
	require.NoError(t, err)
	var doc struct {
		ID        string   `json:"id"`
		Content   string   `json:"content"`
		Likes     []string `json:"likes"`
		LikeCount int64    `json:"like_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, "E1", doc.ID)
	assert.Equal(t, "hello", doc.Content)
	assert.Equal(t, []string{"U9", "U1"}, doc.Likes)
	assert.Equal(t, int64(2), doc.LikeCount)
	assert.Equal(t, DetailsTTL, mr.TTL(g.Key(keyspace.Details)))
}

func TestToggle_ConcurrentPatchesKeepEveryUser(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	g := keyspace.Tweet("E1")
	require.NoError(t, mr.Set(g.Key(keyspace.Details), `{"id":"E1","likes":[],"like_count":0}`))

	const users = 50
	var wg sync.WaitGroup
	want := make([]string, users)
	for i := 0; i < users; i++ {
		want[i] = fmt.Sprintf("U%d", i)
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := toggler.Toggle(context.Background(), user, "E1")
			assert.NoError(t, err)
		}(want[i])
	}
	wg.Wait()

	// a snapshot that lost its patch is dropped, never left missing a user
	if !mr.Exists(g.Key(keyspace.Details)) {
		return
	}
	raw, err := mr.Get(g.Key(keyspace.Details))
	require.NoError(t, err)
	var doc struct {
		ID        string   `json:"id"`
		Likes     []string `json:"likes"`
		LikeCount int64    `json:"like_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, "E1", doc.ID)
	assert.ElementsMatch(t, want, doc.Likes)
	assert.Equal(t, int64(users), doc.LikeCount)
}

func TestToggle_CorruptCounterRestartsFromZero(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	g := keyspace.Tweet("E1")
	require.NoError(t, mr.Set(g.Key(keyspace.LikeCount), "garbage"))

	res, err := toggler.Toggle(context.Background(), "U1", "E1")
	require.NoError(t, err)
	assert.Equal(t, Result{Status: StatusLike, LikeCount: 1}, res)
	count, err := mr.Get(g.Key(keyspace.LikeCount))
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func TestToggle_NoSnapshotNoPatch(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)

	_, err := toggler.Toggle(context.Background(), "U1", "E1")
	require.NoError(t, err)
	assert.False(t, mr.Exists(keyspace.Tweet("E1").Key(keyspace.Details)))
}

func TestToggle_BrokenSnapshotDoesNotBlockToggle(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	g := keyspace.Tweet("E1")

	require.NoError(t, mr.Set(g.Key(keyspace.Details), "not json"))
	res, err := toggler.Toggle(context.Background(), "U1", "E1")
	require.NoError(t, err)
	assert.Equal(t, StatusLike, res.Status)

	raw, err := mr.Get(g.Key(keyspace.Details))
	require.NoError(t, err)
	assert.Equal(t, "not json", raw)

	// a snapshot of the wrong type fails its read but not the toggle
	mr.Del(g.Key(keyspace.Details))
	mr.HSet(g.Key(keyspace.Details), "f", "v")
	res, err = toggler.Toggle(context.Background(), "U2", "E1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LikeCount)
}

func TestToggle_CoreCacheFailureReturnsError(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	g := keyspace.Tweet("E1")

	// the like-set key holds a string, so SISMEMBER fails
	require.NoError(t, mr.Set(g.Key(keyspace.LikeSet), "oops"))

	_, err := toggler.Toggle(context.Background(), "U1", "E1")
	require.Error(t, err)
	assert.False(t, mr.Exists(g.Key(keyspace.SyncStatus)))
	assert.False(t, mr.Exists(keyspace.PendingQueue))
}

func TestToggle_InvalidArguments(t *testing.T) {
	store, _ := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)

	_, err := toggler.Toggle(context.Background(), "", "E1")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = toggler.Toggle(context.Background(), "U1", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestToggle_Metrics(t *testing.T) {
	store, _ := newTestStore(t)
	metrics := newTestMetrics(t)
	toggler := NewToggler(logger.Nop(), store, metrics)

	for i := 0; i < 3; i++ {
		_, err := toggler.Toggle(context.Background(), "U1", "E1")
		require.NoError(t, err)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.toggles.WithLabelValues("Like")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.toggles.WithLabelValues("Unlike")))
}

func TestPatchDetails(t *testing.T) {
	out, err := patchDetails([]byte(`{"likes":["U1","U2"],"like_count":2,"extra":{"a":1}}`), "U1",
		Result{Status: StatusUnlike, LikeCount: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"likes":["U2"],"like_count":1,"extra":{"a":1}}`, string(out))

	out, err = patchDetails([]byte(`{"id":"E1"}`), "U1", Result{Status: StatusUnlike})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"E1","likes":[],"like_count":0}`, string(out))

	// liking twice in the snapshot does not duplicate the user
	out, err = patchDetails([]byte(`{"likes":["U1"]}`), "U1", Result{Status: StatusLike, LikeCount: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"likes":["U1"],"like_count":1}`, string(out))

	_, err = patchDetails([]byte(`[1,2]`), "U1", Result{Status: StatusLike})
	assert.Error(t, err)
	_, err = patchDetails([]byte(`{"likes":"nope"}`), "U1", Result{Status: StatusLike})
	assert.Error(t, err)
}

func TestResult_JSON(t *testing.T) {
	out, err := json.Marshal(Result{Status: StatusLike, LikeCount: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Like","likeCount":1}`, string(out))

	_, err = json.Marshal(Result{Status: "Maybe"})
	assert.Error(t, err)
}

func TestToggle_DetailsTTLRefreshed(t *testing.T) {
	store, mr := newTestStore(t)
	toggler := NewToggler(logger.Nop(), store, nil)
	g := keyspace.Tweet("E1")

	require.NoError(t, mr.Set(g.Key(keyspace.Details), `{}`))
	mr.SetTTL(g.Key(keyspace.Details), time.Second)

	_, err := toggler.Toggle(context.Background(), "U1", "E1")
	require.NoError(t, err)
	assert.Equal(t, DetailsTTL, mr.TTL(g.Key(keyspace.Details)))
}
