// Package keyspace derives cache keys for like-state.
//
// Keys that must be mutated together in one atomic batch belong to the same
// affinity Group. A Group renders its keys with a shared Redis Cluster hash tag,
// so every key of a group hashes to the same slot and therefore the same shard.
// Cross-entity structures (the pending queue, attempt counters, the parked set)
// are plain global keys and never belong to a group.
package keyspace

import (
	"fmt"
	"strings"
)

// Names of the keys inside a tweet group
const (
	// LikeSet is the set of user ids currently liking the tweet
	LikeSet = "likes"
	// LikeCount is the denormalized like counter
	LikeCount = "like_count"
	// SyncStatus is the hash user id -> "1" (like) / "0" (unlike) pending reconciliation
	SyncStatus = "sync_status"
	// Details is the cached projection of the tweet
	Details = "details"
)

// Global keys, deliberately outside any affinity group
const (
	// PendingQueue is the list of tweet ids waiting for reconciliation
	PendingQueue = "likes:pending"
	// Attempts is the hash tweet id -> failed reconciliation attempts
	Attempts = "likes:attempts"
	// Parked is the set of tweet ids that exceeded the reconciliation attempt limit
	Parked = "likes:parked"
	// ReconcileStats holds the cross-worker reconciliation counters
	ReconcileStats = "likes:reconcile_stats"
)

// Group is an affinity group: all keys derived from it co-locate on one shard.
// The zero value is invalid; construct groups with Tweet.
type Group struct {
	tag string
}

// Tweet returns the affinity group holding the like-state of one tweet
func Tweet(tweetID string) Group {
	return Group{tag: "{tweet:" + tweetID + "}"}
}

// Key derives the concrete cache key for name inside the group
func (g Group) Key(name string) string {
	return g.tag + ":" + name
}

// Tag returns the hash tag shared by all keys of the group
func (g Group) Tag() string {
	return g.tag
}

// Valid reports whether the group was built by a constructor
func (g Group) Valid() bool {
	return g.tag != ""
}

// Contains reports whether key belongs to the group
func (g Group) Contains(key string) bool {
	return g.tag != "" && strings.HasPrefix(key, g.tag+":")
}

func (g Group) String() string {
	return g.tag
}

// LockKey returns the key guarding the named pessimistic lock
func LockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}
