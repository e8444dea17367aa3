// Package kafka carries the optional Kafka transports: the realtime in-app push and the event ingest consumer.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
)

// NewConfig returns the client settings shared by the producer and the consumer group.
func NewConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Version = sarama.V2_8_0_0

	// required by the sync producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	return cfg
}

// NewClient connects to brokers. The producer and the consumer group are built on top of it.
func NewClient(brokers []string, clientID string) (sarama.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	client, err := sarama.NewClient(brokers, NewConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("connect to kafka: %w", err)
	}
	return client, nil
}

// Probe reports whether client still has a live broker connection.
func Probe(client sarama.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if client.Closed() {
			return errors.New("kafka client closed")
		}
		if len(client.Brokers()) == 0 {
			return errors.New("no kafka brokers available")
		}
		return ctx.Err()
	}
}
