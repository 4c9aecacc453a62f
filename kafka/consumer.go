package kafka

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dailyyoga/likesync/logger"
	"github.com/dailyyoga/likesync/routine"
)

type defaultConsumer struct {
	consumerInstances []*consumeInstance
	runner            routine.Runner

	closed atomic.Bool
}

// NewConsumer creates a new kafka consumer group member with
// config.InstanceNum parallel instances
func NewConsumer(log logger.Logger, config *ConsumerConfig) (Consumer, error) {
	if config == nil {
		config = DefaultConsumerConfig()
	} else {
		config = config.MergeDefaults()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := validateKafkaCluster(log, config.Brokers, config.Topics, config.MaxRetries); err != nil {
		return nil, err
	}

	consumerInstances := make([]*consumeInstance, config.InstanceNum)
	for i := 0; i < config.InstanceNum; i++ {
		instanceName := fmt.Sprintf("%s-instance-%d", config.GroupID, i+1)
		instance, err := newConsumeInstance(instanceName, config, log)
		if err != nil {
			for _, started := range consumerInstances[:i] {
				_ = started.Close()
			}
			return nil, err
		}
		consumerInstances[i] = instance
	}

	return &defaultConsumer{
		consumerInstances: consumerInstances,
		runner:            routine.New(log),
	}, nil
}

// Start starts every instance's consume loop; the loops stop when ctx is done
func (c *defaultConsumer) Start(ctx context.Context, handler ConsumerMsgHandler) error {
	if len(c.consumerInstances) == 0 {
		return ErrNoConsumerInstances
	}

	for _, instance := range c.consumerInstances {
		instance.Start(ctx, c.runner, handler)
	}
	return nil
}

// Close waits for the consume loops to exit, then closes the instances.
// Cancel the context passed to Start first.
func (c *defaultConsumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if len(c.consumerInstances) == 0 {
		return ErrNoConsumerInstances
	}

	c.runner.Wait()
	for _, instance := range c.consumerInstances {
		if err := instance.Close(); err != nil {
			return err
		}
	}
	return nil
}
