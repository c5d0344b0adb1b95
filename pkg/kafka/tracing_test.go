package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_GetSetKeys(t *testing.T) {
	headers := []kafka.Header{{Key: "source", Value: []byte("catalog-service")}}
	carrier := NewHeaderCarrier(&headers)

	assert.Equal(t, "catalog-service", carrier.Get("source"))
	assert.Empty(t, carrier.Get("missing"))

	carrier.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	carrier.Set("source", "product-service")

	assert.Equal(t, "product-service", carrier.Get("source"))
	assert.ElementsMatch(t, []string{"source", "traceparent"}, carrier.Keys())
	require.Len(t, headers, 2)
}

func TestHeaderCarrier_Empty(t *testing.T) {
	var headers []kafka.Header
	carrier := NewHeaderCarrier(&headers)
	assert.Empty(t, carrier.Keys())
	assert.Empty(t, carrier.Get("traceparent"))
}

func TestHeaderCarrier_PropagatesTraceContext(t *testing.T) {
	prop := propagation.TraceContext{}
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})

	var headers []kafka.Header
	prop.Inject(trace.ContextWithRemoteSpanContext(context.Background(), sc), NewHeaderCarrier(&headers))
	require.NotEmpty(t, headers)

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), NewHeaderCarrier(&headers)))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
	assert.True(t, got.IsSampled())
}
