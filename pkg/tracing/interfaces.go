package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerInterface is what services depend on, so tests can hand in a no-op tracer
type TracerInterface interface {
	StartServerSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	StartClientSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	StartInternalSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	StartProducerSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	StartConsumerSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	RecordError(span trace.Span, err error)
	AddAttributes(span trace.Span, attrs ...attribute.KeyValue)
	AddEventAttributes(span trace.Span, eventID, eventType, idempotencyKey string)
	AddDeliveryAttributes(span trace.Span, entryID, channel string, attempt int)
	AddKafkaAttributes(span trace.Span, topic, operation string, partition int32, offset int64)
}

// ConfigInterface defines the methods for configuration
type ConfigInterface interface {
	Validate() error
}

var (
	_ TracerInterface = (*Tracer)(nil)
	_ ConfigInterface = (*Config)(nil)
)
