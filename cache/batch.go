package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dailyyoga/likesync/keyspace"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds how often Watch retries after losing a race
const maxTxRetries = 16

// Batch queues writes against one affinity group.
// Keys are addressed by their name inside the group, so a batch cannot reach
// a key that lives on another shard.
type Batch struct {
	ctx   context.Context
	pipe  redis.Pipeliner
	group keyspace.Group
}

// Set queues SET name value with an optional ttl
func (b *Batch) Set(name string, value any, ttl time.Duration) {
	b.pipe.Set(b.ctx, b.group.Key(name), value, ttl)
}

// SAdd queues SADD name members...
func (b *Batch) SAdd(name string, members ...any) {
	b.pipe.SAdd(b.ctx, b.group.Key(name), members...)
}

// SRem queues SREM name members...
func (b *Batch) SRem(name string, members ...any) {
	b.pipe.SRem(b.ctx, b.group.Key(name), members...)
}

// HSet queues HSET name field value [field value ...]
func (b *Batch) HSet(name string, values ...any) {
	b.pipe.HSet(b.ctx, b.group.Key(name), values...)
}

// IncrBy queues INCRBY name n
func (b *Batch) IncrBy(name string, n int64) {
	b.pipe.IncrBy(b.ctx, b.group.Key(name), n)
}

// Del queues DEL of the named keys
func (b *Batch) Del(names ...string) {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = b.group.Key(name)
	}
	b.pipe.Del(b.ctx, keys...)
}

// Batch runs the writes queued by fn as one MULTI/EXEC transaction.
// Nothing is sent when fn returns an error.
func (s *Store) Batch(ctx context.Context, group keyspace.Group, fn func(b *Batch) error) error {
	if !group.Valid() {
		return ErrInvalidGroup
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(&Batch{ctx: ctx, pipe: pipe, group: group})
	})
	if err != nil {
		return ErrBatch(group.String(), err)
	}
	return nil
}

// Reader queues reads inside a watched transaction
type Reader struct {
	ctx   context.Context
	pipe  redis.Pipeliner
	group keyspace.Group
}

// Get queues GET name
func (r *Reader) Get(name string) *redis.StringCmd {
	return r.pipe.Get(r.ctx, r.group.Key(name))
}

// SIsMember queues SISMEMBER name member
func (r *Reader) SIsMember(name string, member any) *redis.BoolCmd {
	return r.pipe.SIsMember(r.ctx, r.group.Key(name), member)
}

// HGetAll queues HGETALL name
func (r *Reader) HGetAll(name string) *redis.MapStringStringCmd {
	return r.pipe.HGetAll(r.ctx, r.group.Key(name))
}

// GroupTx is an optimistic transaction over watched keys of one group
type GroupTx struct {
	ctx   context.Context
	tx    *redis.Tx
	group keyspace.Group
}

// Read sends the reads queued by fn in one round trip.
// Errors are reported per command, so one failed read does not hide the
// others; a missing key reports redis.Nil.
func (t *GroupTx) Read(fn func(r *Reader)) {
	_, _ = t.tx.Pipelined(t.ctx, func(pipe redis.Pipeliner) error {
		fn(&Reader{ctx: t.ctx, pipe: pipe, group: t.group})
		return nil
	})
}

// Commit runs the writes queued by fn in MULTI/EXEC; it fails with
// redis.TxFailedErr when a watched key changed since the watch started
func (t *GroupTx) Commit(fn func(b *Batch) error) error {
	_, err := t.tx.TxPipelined(t.ctx, func(pipe redis.Pipeliner) error {
		return fn(&Batch{ctx: t.ctx, pipe: pipe, group: t.group})
	})
	return err
}

// Watch runs fn as an optimistic transaction over the named keys of group.
// fn is re-run from scratch when a concurrent writer touched a watched key,
// up to maxTxRetries times; after that ErrTxConflict is returned.
func (s *Store) Watch(ctx context.Context, group keyspace.Group, fn func(tx *GroupTx) error, names ...string) error {
	if !group.Valid() {
		return ErrInvalidGroup
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = group.Key(name)
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			return fn(&GroupTx{ctx: ctx, tx: tx, group: group})
		}, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return ErrBatch(group.String(), err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ErrTxConflict
}

// EvalGroup runs script with the named keys of group as KEYS, so a script
// cannot reach a key on another shard either. Script errors are returned.
func (s *Store) EvalGroup(ctx context.Context, group keyspace.Group, script *redis.Script, names []string, args ...any) (any, error) {
	if !group.Valid() {
		return nil, ErrInvalidGroup
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = group.Key(name)
	}
	return script.Run(ctx, s.rdb, keys, args...).Result()
}

// HDrain reads and deletes the named hash of group in one MULTI/EXEC, so no
// field written concurrently can slip between the read and the delete
func (s *Store) HDrain(ctx context.Context, group keyspace.Group, name string) (map[string]string, error) {
	if !group.Valid() {
		return nil, ErrInvalidGroup
	}
	key := group.Key(name)

	var all *redis.MapStringStringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		all = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, ErrBatch(group.String(), err)
	}
	return all.Val(), nil
}
