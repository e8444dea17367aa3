package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/pkg/tracing"
)

// Publisher pushes stored in-app notifications to the realtime topic, keyed by recipient so
// one user's notifications stay ordered on one partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	tracer   tracing.TracerInterface
	log      *slog.Logger
}

func NewPublisher(producer sarama.SyncProducer, topic string, tracer tracing.TracerInterface, log *slog.Logger) *Publisher {
	if producer == nil || tracer == nil || log == nil {
		panic("NewPublisher: nil dependencies provided")
	}
	if topic == "" {
		panic("NewPublisher: topic must not be empty")
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		tracer:   tracer,
		log:      log.With("layer", "kafka", "component", "publisher"),
	}
}

// Push blocks until the broker acknowledges the message.
func (p *Publisher) Push(ctx context.Context, n model.InAppNotification) error {
	ctx, span := p.tracer.StartProducerSpan(ctx, "KafkaPush")
	defer span.End()

	data, err := json.Marshal(n)
	if err != nil {
		p.tracer.RecordError(span, err)
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(n.UserID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: n.CreatedAt,
	}
	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.tracer.RecordError(span, err)
		p.log.ErrorContext(ctx, "Message delivery failed",
			slog.String("topic", p.topic), slog.String("notification_id", n.ID), slog.Any("error", err))
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.tracer.AddKafkaAttributes(span, p.topic, "publish", partition, offset)
	p.log.DebugContext(ctx, "Message delivered",
		slog.String("topic", p.topic), slog.Int("partition", int(partition)), slog.Int64("offset", offset),
		slog.String("key", n.UserID))
	return nil
}

func (p *Publisher) Close() error {
	p.log.Info("Closing Kafka producer...")
	return p.producer.Close()
}
