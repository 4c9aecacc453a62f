package like

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dailyyoga/likesync/ch"
	"github.com/dailyyoga/likesync/kafka"
	"github.com/dailyyoga/likesync/logger"
	"go.uber.org/zap"
)

// LikeEventsTable stores every delivered like notification
const LikeEventsTable ch.TableName = "like_events"

// LikeEventsDDL creates LikeEventsTable
const LikeEventsDDL = `CREATE TABLE IF NOT EXISTS like_events (
	event_type  LowCardinality(String),
	actor       String,
	recipient   String,
	tweet_id    String,
	created_at  DateTime64(3),
	received_at DateTime64(3)
) ENGINE = MergeTree
ORDER BY (tweet_id, created_at)`

var likeEventColumns = []string{"event_type", "actor", "recipient", "tweet_id", "created_at", "received_at"}

// LikeEvent is one like_events row
type LikeEvent struct {
	Notification
	ReceivedAt time.Time
}

func (e *LikeEvent) TableName() ch.TableName { return LikeEventsTable }

func (e *LikeEvent) Columns() []string { return likeEventColumns }

func (e *LikeEvent) Values() []any {
	return []any{e.Type, e.Actor, e.Recipient, e.Subject, e.CreatedAt, e.ReceivedAt}
}

// Relay copies like notifications from the topic into ClickHouse
type Relay struct {
	consumer kafka.Consumer
	writer   ch.Writer
	logger   logger.Logger
	now      func() time.Time
}

func NewRelay(log logger.Logger, consumer kafka.Consumer, writer ch.Writer) *Relay {
	return &Relay{consumer: consumer, writer: writer, logger: log, now: time.Now}
}

// Start begins consuming; it returns once the consumer loops are running
func (r *Relay) Start(ctx context.Context) error {
	return r.consumer.Start(ctx, r.Handle)
}

// Handle buffers one notification message as a like_events row.
// Undecodable messages are skipped since retrying cannot fix them.
func (r *Relay) Handle(ctx context.Context, msg *kafka.Message) error {
	var n Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		r.logger.Error("skipping undecodable notification",
			zap.ByteString("key", msg.Key),
			zap.Error(ErrDecodeEvent(err)),
		)
		return nil
	}
	if n.Type != NotificationTypeLike {
		r.logger.Debug("skipping notification", zap.String("event_type", n.Type))
		return nil
	}

	return r.writer.Write(ctx, []ch.Table{&LikeEvent{Notification: n, ReceivedAt: r.now()}})
}

// CreateLikeEventsTable runs LikeEventsDDL
func CreateLikeEventsTable(ctx context.Context, client ch.Client) error {
	return client.Exec(ctx, LikeEventsDDL)
}
