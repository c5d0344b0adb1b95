package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/agrilogistic/search/pkg/errors"
	"github.com/agrilogistic/search/pkg/logger"
	"github.com/agrilogistic/search/pkg/tracing"
)

const tracerName = "github.com/agrilogistic/search/internal/service"

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_operations_total",
			Help: "Total number of search service operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_operation_duration_seconds",
			Help:    "Duration of search service operations in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	indexedDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_indexed_documents_total",
			Help: "Total number of documents written to or removed from the index",
		},
		[]string{"action", "outcome"},
	)

	reindexInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_reindex_in_progress",
			Help: "1 while a full reindex is running",
		},
	)
)

// outcome labels an error for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperrors.IsRetryable(err):
		return "unavailable"
	default:
		return "error"
	}
}

// traceOperation starts a span for a service operation. The returned function
// records the outcome and must be called when the operation completes:
//
//	ctx, end := s.traceOperation(ctx, "Search", attribute.String("search.query", q))
//	defer func() { end(err) }()
//
// Operations slower than the configured threshold are logged as warnings.
func (s *SearchService) traceOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "search."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append(attrs, attribute.String("search.operation", operation))...),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		operationsTotal.WithLabelValues(operation, outcome(err)).Inc()
		operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())

		if threshold := s.cfg.SlowOperationThreshold; threshold > 0 && elapsed >= threshold {
			args := []any{
				slog.String("operation", operation),
				slog.Duration("duration", elapsed),
			}
			if err != nil {
				args = append(args, slog.String("error", err.Error()))
			}
			logger.WithContext(ctx, s.logger).WarnContext(ctx, "slow search operation", args...)
		}
	}
}

// storeContext bounds a single call to the search store.
func (s *SearchService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}
