package kafka

import "fmt"

var (
	ErrNoConsumerInstances = fmt.Errorf("kafka: no consumer instances")
	ErrProducerClosed      = fmt.Errorf("kafka: producer closed")
	ErrInvalid             = fmt.Errorf("kafka: invalid config")
	ErrUnknownTopic        = fmt.Errorf("kafka: unknown topic")
)

func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

func ErrConnection(err error) error {
	return fmt.Errorf("kafka: connection: %w", err)
}

func ErrUnknownTopics(topics []string) error {
	return fmt.Errorf("%w: %v", ErrUnknownTopic, topics)
}

func ErrSubscribe(topics []string, err error) error {
	return fmt.Errorf("kafka: subscribe %v: %w", topics, err)
}

func ErrConsume(err error) error {
	return fmt.Errorf("kafka: consume: %w", err)
}

func ErrCommit(err error) error {
	return fmt.Errorf("kafka: commit: %w", err)
}

// ErrDelivery is returned when the broker rejected or never acknowledged a message
func ErrDelivery(topic string, err error) error {
	return fmt.Errorf("kafka: deliver to %s: %w", topic, err)
}
