package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/likesync/logger"
	"go.uber.org/zap"
)

type defaultProducer struct {
	logger logger.Logger

	p               *kafka.Producer
	deliveryTimeout time.Duration

	wg     sync.WaitGroup
	done   chan struct{}
	closed atomic.Bool
}

// NewProducer creates a new kafka producer
func NewProducer(log logger.Logger, config *ProducerConfig) (Producer, error) {
	if config == nil {
		config = DefaultProducerConfig()
	} else {
		config = config.MergeDefaults()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := validateKafkaCluster(log, config.Brokers, nil, config.MaxRetries); err != nil {
		return nil, err
	}

	configMap := config.BuildConfigMap()

	var producer *kafka.Producer
	var err error

	retryDelay := 3 * time.Second
	for i := 0; i < config.MaxRetries; i++ {
		producer, err = kafka.NewProducer(configMap)
		if err == nil {
			break
		}

		if i < config.MaxRetries-1 {
			log.Warn("failed to create kafka producer, retrying...",
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("max_retries", config.MaxRetries),
			)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		return nil, ErrConnection(fmt.Errorf("create producer after %d retries: %w", config.MaxRetries, err))
	}

	kp := &defaultProducer{
		p:               producer,
		deliveryTimeout: config.DeliveryTimeout,
		logger:          log,
		done:            make(chan struct{}),
	}

	kp.wg.Add(1)
	go kp.handleEvents()

	log.Info("kafka producer initialized and validated", zap.Strings("brokers", config.Brokers))
	return kp, nil
}

// handleEvents drains client-level events; per-message delivery reports go to
// the channel passed to Produce
func (kp *defaultProducer) handleEvents() {
	defer kp.wg.Done()

	for {
		select {
		case <-kp.done:
			return
		case e := <-kp.p.Events():
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					kp.logger.Error("failed to deliver message",
						zap.Error(ev.TopicPartition.Error),
						zap.String("topic", topicName(ev.TopicPartition.Topic)),
					)
				}
			case kafka.Error:
				kp.logger.Error("kafka producer error",
					zap.Int("code", int(ev.Code())),
					zap.String("error", ev.String()),
				)
				if ev.Code() == kafka.ErrAllBrokersDown {
					kp.logger.Error("all kafka brokers are down", zap.Error(ev))
				}
			default:
				kp.logger.Debug("received unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
			}
		}
	}
}

// Produce sends msg and waits for the broker acknowledgement
func (kp *defaultProducer) Produce(ctx context.Context, msg *Message) error {
	if kp.closed.Load() {
		return ErrProducerClosed
	}
	if msg.TopicPartition.Topic == nil {
		return ErrInvalidConfig("topic is required")
	}
	if msg.Value == nil {
		return ErrInvalidConfig("value is required")
	}
	topic := *msg.TopicPartition.Topic

	delivery := make(chan kafka.Event, 1)
	if err := kp.p.Produce(fromMessage(msg), delivery); err != nil {
		return ErrDelivery(topic, err)
	}

	ctx, cancel := context.WithTimeout(ctx, kp.deliveryTimeout)
	defer cancel()

	select {
	case e := <-delivery:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return ErrDelivery(topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ErrDelivery(topic, ctx.Err())
	}
}

// Close flushes outstanding messages and closes the kafka producer
func (kp *defaultProducer) Close() error {
	if !kp.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(kp.done)
	kp.wg.Wait()

	remaining := kp.p.Flush(int(kp.deliveryTimeout.Milliseconds()))
	if remaining > 0 {
		kp.logger.Warn("producer closed with undelivered messages", zap.Int("remaining", remaining))
	}

	kp.p.Close()
	return nil
}

func topicName(topic *string) string {
	if topic == nil {
		return ""
	}
	return *topic
}
