package kafka

import (
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/likesync/logger"
	"go.uber.org/zap"
)

const (
	metadataTimeout    = 10 * time.Second
	metadataRetryDelay = 2 * time.Second
)

// validateKafkaCluster fetches cluster metadata so unreachable brokers, and
// topics that do not exist yet, fail at startup instead of on the first
// message
func validateKafkaCluster(log logger.Logger, brokers, topics []string, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}

	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"request.timeout.ms": int(metadataTimeout.Milliseconds()),
	})
	if err != nil {
		return ErrConnection(err)
	}
	defer admin.Close()

	var md *kafka.Metadata
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if md, err = admin.GetMetadata(nil, true, int(metadataTimeout.Milliseconds())); err == nil {
			break
		}
		log.Warn("kafka metadata request failed",
			zap.Strings("brokers", brokers),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		if attempt < maxRetries {
			time.Sleep(metadataRetryDelay)
		}
	}
	if err != nil {
		return ErrConnection(err)
	}

	if missing := missingTopics(md, topics); len(missing) > 0 {
		return ErrUnknownTopics(missing)
	}

	log.Info("kafka cluster validated", zap.Strings("brokers", brokers), zap.Strings("topics", topics))
	return nil
}

// missingTopics returns the topics that metadata does not list or lists with
// an error
func missingTopics(md *kafka.Metadata, topics []string) []string {
	var missing []string
	for _, topic := range topics {
		tm, ok := md.Topics[topic]
		if !ok || tm.Error.Code() != kafka.ErrNoError {
			missing = append(missing, topic)
		}
	}
	return missing
}
