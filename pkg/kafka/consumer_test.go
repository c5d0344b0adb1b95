package kafka

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilogistic/search/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
	closed    int
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeDLQ struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	errs   []error
	groups []string
}

func (d *fakeDLQ) Publish(_ context.Context, msg kafka.Message, lastErr error, group string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	d.errs = append(d.errs, lastErr)
	d.groups = append(d.groups, group)
	return nil
}

func eventMessage(t *testing.T, topic string, offset int64) (kafka.Message, *Event) {
	t.Helper()
	evt, err := NewEvent("product.updated", "p-1", "product", "product-service", map[string]string{"id": "p-1"})
	require.NoError(t, err)
	evt.WithCorrelationID("corr-1")
	value, err := evt.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Offset: offset, Key: []byte("p-1"), Value: value}, evt
}

func testConsumerConfig() ConsumerConfig {
	return ConsumerConfig{GroupID: "search-test", MaxRetries: 3, RetryBackoff: time.Millisecond}
}

// runUntilCommitted runs c until want messages are committed, then stops it.
func runUntilCommitted(t *testing.T, c *Consumer, r *fakeReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return r.committedCount() >= want }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_ProcessesAndCommits(t *testing.T) {
	topic := "consumer-test-ok"
	msg, evt := eventMessage(t, topic, 7)
	r := newFakeReader(msg)

	var got *Event
	var eventID, correlationID string
	c := newConsumer(r, testConsumerConfig(), func(ctx context.Context, e *Event) error {
		got = e
		eventID = logger.EventIDFromContext(ctx)
		correlationID = logger.CorrelationIDFromContext(ctx)
		return nil
	}, testLogger())

	runUntilCommitted(t, c, r, 1)

	require.NotNil(t, got)
	assert.Equal(t, evt.EventID, got.EventID)
	assert.Equal(t, evt.EventID, eventID)
	assert.Equal(t, "corr-1", correlationID)
	assert.Equal(t, int64(7), r.committed[0].Offset)
	assert.Equal(t, 1, r.closed)
	assert.InDelta(t, 1, testutil.ToFloat64(ConsumerMessagesProcessed.WithLabelValues(topic, "search-test")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(ConsumerMessagesReceived.WithLabelValues(topic, "search-test")), 0.001)
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	msg, _ := eventMessage(t, "consumer-test-retry", 1)
	r := newFakeReader(msg)
	dlq := &fakeDLQ{}

	var attempts atomic.Int32
	c := newConsumer(r, testConsumerConfig(), func(context.Context, *Event) error {
		if attempts.Add(1) < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}, testLogger())
	c.dlq = dlq

	runUntilCommitted(t, c, r, 1)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Empty(t, dlq.msgs)
}

func TestConsumer_ExhaustedRetriesGoToDLQ(t *testing.T) {
	topic := "consumer-test-exhausted"
	msg, _ := eventMessage(t, topic, 3)
	r := newFakeReader(msg)
	dlq := &fakeDLQ{}

	var attempts atomic.Int32
	c := newConsumer(r, testConsumerConfig(), func(context.Context, *Event) error {
		attempts.Add(1)
		return errors.New("store unavailable")
	}, testLogger())
	c.dlq = dlq

	runUntilCommitted(t, c, r, 1)

	assert.Equal(t, int32(3), attempts.Load())
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, int64(3), dlq.msgs[0].Offset)
	assert.EqualError(t, dlq.errs[0], "store unavailable")
	assert.Equal(t, "search-test", dlq.groups[0])
	assert.InDelta(t, 1, testutil.ToFloat64(ConsumerMessagesFailed.WithLabelValues(topic, "search-test")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(ConsumerDLQPublished.WithLabelValues(topic, "search-test")), 0.001)
}

func TestConsumer_PermanentErrorSkipsRetries(t *testing.T) {
	msg, _ := eventMessage(t, "consumer-test-permanent", 1)
	r := newFakeReader(msg)
	dlq := &fakeDLQ{}

	var attempts atomic.Int32
	c := newConsumer(r, testConsumerConfig(), func(context.Context, *Event) error {
		attempts.Add(1)
		return Permanent(errors.New("payload missing id"))
	}, testLogger())
	c.dlq = dlq

	runUntilCommitted(t, c, r, 1)

	assert.Equal(t, int32(1), attempts.Load())
	require.Len(t, dlq.errs, 1)
	assert.ErrorIs(t, dlq.errs[0], ErrPermanent)
}

func TestConsumer_MalformedMessage(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "consumer-test-malformed", Value: []byte("{not json")})
	dlq := &fakeDLQ{}

	var called atomic.Bool
	c := newConsumer(r, testConsumerConfig(), func(context.Context, *Event) error {
		called.Store(true)
		return nil
	}, testLogger())
	c.dlq = dlq

	runUntilCommitted(t, c, r, 1)

	assert.False(t, called.Load())
	require.Len(t, dlq.errs, 1)
	assert.Contains(t, dlq.errs[0].Error(), "unmarshal event")
}

func TestConsumer_CancelDuringRetryLeavesMessageUncommitted(t *testing.T) {
	msg, _ := eventMessage(t, "consumer-test-cancel", 1)
	r := newFakeReader()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConsumerConfig()
	cfg.RetryBackoff = time.Hour
	c := newConsumer(r, cfg, func(context.Context, *Event) error {
		cancel()
		return errors.New("store unavailable")
	}, testLogger())

	assert.False(t, c.process(ctx, msg))
	assert.Zero(t, r.committedCount())
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := newConsumer(newFakeReader(), ConsumerConfig{GroupID: "g"}, nil, testLogger())
	assert.Equal(t, defaultMaxRetries, c.maxRetries)
	assert.Equal(t, defaultRetryBackoff, c.retryBackoff)
	assert.Nil(t, c.dlq)

	d := NewDLQProducer([]string{"localhost:9092"}, testLogger())
	defer d.Close()
	c = newConsumer(newFakeReader(), ConsumerConfig{}, nil, testLogger(), WithDeadLetterQueue(d))
	assert.Same(t, d, c.dlq)
}

func TestConsumer_CloseIsIdempotent(t *testing.T) {
	r := newFakeReader()
	c := newConsumer(r, testConsumerConfig(), nil, testLogger())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, r.closed)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	cause := errors.New("bad payload")
	err := Permanent(cause)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, cause)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "agrilogistic.product.created", Topic("product", "created"))
	assert.Equal(t, "agrilogistic.dlq.agrilogistic.product.deleted", DLQTopic(Topic("product", "deleted")))
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	assert.Error(t, PingBrokers(context.Background(), nil))
}

func TestPingBrokers_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := PingBrokers(ctx, []string{"127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all brokers unreachable")
}
