package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/pkg/tracing"
)

// EventSink emits one raw event published by another service.
type EventSink interface {
	Ingest(ctx context.Context, raw []byte, defaultKey string) (*model.Event, error)
}

// Consumer reads the ingest topic with a consumer group and hands each message to the sink.
type Consumer struct {
	topic         string
	sink          EventSink
	consumerGroup sarama.ConsumerGroup
	tracer        tracing.TracerInterface
	log           *slog.Logger
}

// NewConsumer receives its consumer group via dependency injection.
func NewConsumer(
	topic string,
	consumerGroup sarama.ConsumerGroup,
	sink EventSink,
	tracer tracing.TracerInterface,
	log *slog.Logger,
) *Consumer {
	return &Consumer{
		topic:         topic,
		consumerGroup: consumerGroup,
		sink:          sink,
		tracer:        tracer,
		log:           log.With("layer", "kafka", "component", "consumer"),
	}
}

// Start blocks until the context is cancelled or the consumer group is closed.
func (c *Consumer) Start(ctx context.Context) error {
	defer func() {
		if err := c.consumerGroup.Close(); err != nil {
			c.log.Warn("Failed to close consumer group", slog.Any("error", err))
		}
	}()

	c.log.Info("Kafka consumer started", slog.String("topic", c.topic))

	backoff := time.Second
	for {
		err := c.consumerGroup.Consume(ctx, []string{c.topic}, c)
		if ctx.Err() != nil {
			c.log.Info("Context cancelled, stopping consumer")
			return nil
		}
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return err
			}
			c.log.Error("Error consuming messages", slog.Any("error", err), slog.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

// Setup logs which partitions this instance was assigned.
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	for topic, partitions := range session.Claims() {
		c.log.Info("Partition assignment", slog.String("topic", topic), slog.Any("partitions", partitions))
	}
	return nil
}

func (c *Consumer) Cleanup(_ sarama.ConsumerGroupSession) error {
	c.log.Info("Kafka session cleanup complete")
	return nil
}

// ConsumeClaim marks a message once it is emitted or proven malformed. Any other failure leaves
// the offset unmarked and ends the claim, so the message is redelivered after the rebalance.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handleMessage(session.Context(), msg); err != nil {
				return err
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage returns an error only when the message should be redelivered.
func (c *Consumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = tracing.ExtractTraceContext(ctx, msg.Headers)
	ctx, span := c.tracer.StartConsumerSpan(ctx, "KafkaIngest")
	defer span.End()
	c.tracer.AddKafkaAttributes(span, msg.Topic, "process", msg.Partition, msg.Offset)

	key := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	evt, err := c.sink.Ingest(ctx, msg.Value, key)
	switch {
	case appErr.IsMalformed(err):
		c.log.ErrorContext(ctx, "Skipping malformed event message", slog.String("message", key), slog.Any("error", err))
		return nil
	case err != nil:
		c.tracer.RecordError(span, err)
		c.log.ErrorContext(ctx, "Event ingest failed", slog.String("message", key), slog.Any("error", err))
		return fmt.Errorf("ingest %s: %w", key, err)
	}
	c.log.DebugContext(ctx, "Event ingested", slog.String("message", key), slog.String("event_id", evt.ID))
	return nil
}
