package like

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dailyyoga/likesync/kafka"
	"github.com/dailyyoga/likesync/logger"
	"go.uber.org/zap"
)

// Notifier delivers like notifications at least once
type Notifier interface {
	Notify(ctx context.Context, batch []Notification) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, batch []Notification) error

func (f NotifierFunc) Notify(ctx context.Context, batch []Notification) error {
	return f(ctx, batch)
}

// KafkaNotifier publishes each notification as a JSON message keyed by
// recipient, so one recipient's notifications stay ordered on a partition
type KafkaNotifier struct {
	producer kafka.Producer
	topic    string
	logger   logger.Logger
}

func NewKafkaNotifier(log logger.Logger, producer kafka.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, logger: log}
}

// Notify sends every notification even when some fail; the failures are
// joined into the returned error
func (n *KafkaNotifier) Notify(ctx context.Context, batch []Notification) error {
	var errs []error
	for _, notification := range batch {
		payload, err := json.Marshal(notification)
		if err != nil {
			errs = append(errs, ErrNotify(notification, err))
			continue
		}

		msg := &kafka.Message{
			Value: payload,
			Key:   []byte(notification.Recipient),
			TopicPartition: kafka.TopicPartition{
				Topic:     &n.topic,
				Partition: kafka.PartitionAny,
			},
			Headers: []kafka.Header{{Key: "event_type", Value: []byte(notification.Type)}},
		}
		if err := n.producer.Produce(ctx, msg); err != nil {
			errs = append(errs, ErrNotify(notification, err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier only logs notifications; used when no broker is configured
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Notify(_ context.Context, batch []Notification) error {
	for _, notification := range batch {
		n.logger.Info("like notification",
			zap.String("actor", notification.Actor),
			zap.String("recipient", notification.Recipient),
			zap.String("tweet_id", notification.Subject),
		)
	}
	return nil
}

// failedCount is how many notifications of a batch of size total failed
func failedCount(err error, total int) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return total
}
