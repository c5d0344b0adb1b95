package kafka

import (
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func headerMap(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestDLQMessage_CarriesOrigin(t *testing.T) {
	msg := kafka.Message{
		Topic:     "agrilogistic.product.updated",
		Partition: 2,
		Offset:    981,
		Key:       []byte("p-9"),
		Value:     []byte(`{"event_id":"e-1"}`),
		Headers:   []kafka.Header{{Key: "traceparent", Value: []byte("00-abc-def-01")}},
	}

	out := dlqMessage(msg, errors.New("index write failed"), "search-service")

	assert.Equal(t, "agrilogistic.dlq.agrilogistic.product.updated", out.Topic)
	assert.Equal(t, msg.Key, out.Key)
	assert.Equal(t, msg.Value, out.Value)

	h := headerMap(out.Headers)
	assert.Equal(t, "00-abc-def-01", h["traceparent"])
	assert.Equal(t, "agrilogistic.product.updated", h["dlq.original_topic"])
	assert.Equal(t, "2", h["dlq.original_partition"])
	assert.Equal(t, "981", h["dlq.original_offset"])
	assert.Equal(t, "search-service", h["dlq.consumer_group"])
	assert.Equal(t, "index write failed", h["dlq.error"])
}

func TestDLQMessage_WithoutError(t *testing.T) {
	out := dlqMessage(kafka.Message{Topic: "t"}, nil, "g")
	_, hasError := headerMap(out.Headers)["dlq.error"]
	assert.False(t, hasError)
}
