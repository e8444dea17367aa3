package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/pkg/tracing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_PushKeysByRecipient(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewConfig("test"))
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "notifications.inapp" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "cust1" {
			return errors.New("wrong key " + string(key))
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var n model.InAppNotification
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		if n.ID != "q1" {
			return errors.New("wrong notification " + n.ID)
		}
		return nil
	})

	p := NewPublisher(producer, "notifications.inapp", tracing.NewNoopTracer(), discardLogger())
	err := p.Push(context.Background(), model.InAppNotification{
		ID: "q1", UserID: "cust1", Title: "Quote received", CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublisher_PushFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewConfig("test"))
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisher(producer, "notifications.inapp", tracing.NewNoopTracer(), discardLogger())
	err := p.Push(context.Background(), model.InAppNotification{ID: "q1", UserID: "cust1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

type fakeSink struct {
	keys []string
	err  error
}

func (s *fakeSink) Ingest(_ context.Context, _ []byte, defaultKey string) (*model.Event, error) {
	s.keys = append(s.keys, defaultKey)
	if s.err != nil {
		return nil, s.err
	}
	return &model.Event{ID: "e1", IdempotencyKey: defaultKey}, nil
}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "m1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "domain.events" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func claimOf(offsets ...int64) *fakeClaim {
	c := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, len(offsets))}
	for _, o := range offsets {
		c.msgs <- &sarama.ConsumerMessage{Topic: "domain.events", Partition: 0, Offset: o, Value: []byte(`{}`)}
	}
	close(c.msgs)
	return c
}

func TestConsumer_ConsumeClaim(t *testing.T) {
	tests := []struct {
		name       string
		sinkErr    error
		wantErr    bool
		wantMarked []int64
		wantKeys   []string
	}{
		{
			name:       "ingested messages are marked",
			wantMarked: []int64{7, 8},
			wantKeys:   []string{"domain.events/0/7", "domain.events/0/8"},
		},
		{
			name:       "malformed messages are skipped and marked",
			sinkErr:    appErr.NewMalformed("decode envelope"),
			wantMarked: []int64{7, 8},
			wantKeys:   []string{"domain.events/0/7", "domain.events/0/8"},
		},
		{
			name:     "storage failure stops the claim unmarked",
			sinkErr:  errors.New("database is locked"),
			wantErr:  true,
			wantKeys: []string{"domain.events/0/7"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{err: tt.sinkErr}
			c := NewConsumer("domain.events", nil, sink, tracing.NewNoopTracer(), discardLogger())
			session := &fakeSession{ctx: context.Background()}

			err := c.ConsumeClaim(session, claimOf(7, 8))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantMarked, session.marked)
			assert.Equal(t, tt.wantKeys, sink.keys)
		})
	}
}

func TestConsumer_StopsOnCancelledSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConsumer("domain.events", nil, &fakeSink{}, tracing.NewNoopTracer(), discardLogger())

	err := c.ConsumeClaim(&fakeSession{ctx: ctx}, &fakeClaim{msgs: make(chan *sarama.ConsumerMessage)})
	assert.NoError(t, err)
}
