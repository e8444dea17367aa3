package tracing

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeadersCarryTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	msg := &sarama.ProducerMessage{
		Topic:   "notifications.push",
		Headers: []sarama.RecordHeader{{Key: []byte("recipient"), Value: []byte("cust1")}},
	}
	InjectTraceContext(ctx, msg)
	require.Len(t, msg.Headers, 2)

	consumed := make([]*sarama.RecordHeader, 0, len(msg.Headers))
	for i := range msg.Headers {
		consumed = append(consumed, &msg.Headers[i])
	}
	remote := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), consumed))

	assert.True(t, remote.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), remote.TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), remote.SpanID())
}

func TestExtractTraceContextWithoutHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	sc := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), nil))
	assert.False(t, sc.IsValid())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{ServiceName: "tradenotify", SamplingRatio: 0.5}},
		{name: "missing name", cfg: Config{SamplingRatio: 1}, wantErr: "ServiceName"},
		{name: "ratio out of range", cfg: Config{ServiceName: "x", SamplingRatio: 1.5}, wantErr: "SamplingRatio"},
		{name: "enabled without endpoint", cfg: Config{Enabled: true, ServiceName: "x", SamplingRatio: 1}, wantErr: "OTLPExporterEndpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
