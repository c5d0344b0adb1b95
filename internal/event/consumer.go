package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
	apperrors "github.com/agrilogistic/search/pkg/errors"
	pkgkafka "github.com/agrilogistic/search/pkg/kafka"
	"github.com/agrilogistic/search/pkg/logger"
	"github.com/agrilogistic/search/pkg/validator"
)

// Product event types published by the catalog service.
const (
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
)

// Topics returns the Kafka topics carrying product events.
func Topics() []string {
	return []string{
		pkgkafka.Topic("product", "created"),
		pkgkafka.Topic("product", "updated"),
		pkgkafka.Topic("product", "deleted"),
	}
}

// ProductDeletedData is the payload of a product.deleted event.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// Indexer is the part of the search service the consumer drives.
type Indexer interface {
	IndexProduct(ctx context.Context, product *domain.CanonicalProduct, opts engine.WriteOptions) error
	DeleteProduct(ctx context.Context, id string, opts engine.WriteOptions) error
}

// Consumer keeps the index in sync with product events.
type Consumer struct {
	indexer Indexer
	logger  *slog.Logger
}

// NewConsumer creates a new product event consumer.
func NewConsumer(indexer Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{
		indexer: indexer,
		logger:  logger,
	}
}

// Handle processes one product event. Payloads that can never be indexed are
// returned as permanent errors so the message is not retried; store failures
// are returned as is and retried by the Kafka consumer.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case EventProductCreated, EventProductUpdated:
		return c.handleProductUpsert(ctx, event)
	case EventProductDeleted:
		return c.handleProductDeleted(ctx, event)
	default:
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleProductUpsert(ctx context.Context, event *pkgkafka.Event) error {
	var product domain.CanonicalProduct
	if err := event.UnmarshalData(&product); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("unmarshal %s data: %w", event.EventType, err))
	}

	if err := c.indexer.IndexProduct(ctx, &product, engine.WriteOptions{}); err != nil {
		if isRejected(err) {
			return pkgkafka.Permanent(fmt.Errorf("%s %s rejected: %w", event.EventType, product.ID, err))
		}
		return fmt.Errorf("index product from %s event: %w", event.EventType, err)
	}

	logger.WithContext(ctx, c.logger).DebugContext(ctx, "synced product from event",
		slog.String("event_type", event.EventType),
		slog.String("product_id", product.ID),
		slog.String("status", product.Status),
	)
	return nil
}

func (c *Consumer) handleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := event.UnmarshalData(&data); err != nil && (event.AggregateID == "" || !errors.Is(err, pkgkafka.ErrInvalidEnvelope)) {
		return pkgkafka.Permanent(fmt.Errorf("unmarshal %s data: %w", event.EventType, err))
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}

	if err := c.indexer.DeleteProduct(ctx, data.ID, engine.WriteOptions{}); err != nil {
		if isRejected(err) {
			return pkgkafka.Permanent(fmt.Errorf("%s rejected: %w", event.EventType, err))
		}
		return fmt.Errorf("delete product from deleted event: %w", err)
	}

	logger.WithContext(ctx, c.logger).DebugContext(ctx, "removed product from event",
		slog.String("product_id", data.ID),
	)
	return nil
}

// isRejected reports whether err means the payload itself is unusable.
func isRejected(err error) bool {
	var verr *validator.ValidationError
	return errors.As(err, &verr) || errors.Is(err, apperrors.ErrInvalidQuery)
}
