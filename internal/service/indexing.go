package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
	"github.com/agrilogistic/search/internal/mapper"
	apperrors "github.com/agrilogistic/search/pkg/errors"
	"github.com/agrilogistic/search/pkg/logger"
	"github.com/agrilogistic/search/pkg/validator"
)

// IndexProduct brings the index in line with one canonical product: searchable
// products are upserted, draft and archived ones are removed. Validation
// failures are returned as *validator.ValidationError; store failures as
// IndexWriteFailed.
func (s *SearchService) IndexProduct(ctx context.Context, product *domain.CanonicalProduct, opts engine.WriteOptions) (err error) {
	if product == nil {
		return apperrors.InvalidQuery("product is required")
	}
	if err := validator.Validate(product); err != nil {
		return err
	}

	ctx, end := s.traceOperation(ctx, "IndexProduct",
		attribute.String("product.id", product.ID),
		attribute.String("product.status", product.Status),
	)
	defer func() { end(err) }()

	if !domain.IsSearchable(product.Status) {
		logger.WithContext(ctx, s.logger).InfoContext(ctx, "product not searchable, removing from index",
			slog.String("product_id", product.ID),
			slog.String("status", product.Status),
		)
		return s.deleteDocument(ctx, product.ID, opts)
	}

	doc := mapper.ToDocument(product)

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.engine.Index(storeCtx, doc, s.writeOptions(opts)); err != nil {
		indexedDocuments.WithLabelValues("index", outcome(err)).Inc()
		if !errors.Is(err, apperrors.ErrIndexWriteFailed) {
			err = apperrors.IndexWriteFailed(doc.ID, err)
		}
		return err
	}
	indexedDocuments.WithLabelValues("index", "ok").Inc()

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product indexed",
		slog.String("product_id", doc.ID),
		slog.String("name", doc.Name),
	)
	return nil
}

// DeleteProduct removes a product from the index. Deleting a product that is
// not indexed succeeds.
func (s *SearchService) DeleteProduct(ctx context.Context, id string, opts engine.WriteOptions) (err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.InvalidQuery("product id is required")
	}

	ctx, end := s.traceOperation(ctx, "DeleteProduct", attribute.String("product.id", id))
	defer func() { end(err) }()

	return s.deleteDocument(ctx, id, opts)
}

func (s *SearchService) deleteDocument(ctx context.Context, id string, opts engine.WriteOptions) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.engine.Delete(storeCtx, id, s.writeOptions(opts)); err != nil {
		indexedDocuments.WithLabelValues("delete", outcome(err)).Inc()
		return apperrors.Wrap(err, "delete product "+id)
	}
	indexedDocuments.WithLabelValues("delete", "ok").Inc()

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product removed from index",
		slog.String("product_id", id),
	)
	return nil
}

// BulkIndex syncs many canonical products and reports per-product outcomes by
// input position. Invalid products fail individually, non-searchable ones are
// removed, the rest are upserted in batches of at most BulkBatchSize. A batch
// whose request fails marks all its products failed; the call returns an
// error only when every batch failed that way.
func (s *SearchService) BulkIndex(ctx context.Context, products []domain.CanonicalProduct, opts engine.WriteOptions) (_ *domain.BulkResult, err error) {
	ctx, end := s.traceOperation(ctx, "BulkIndex", attribute.Int("bulk.size", len(products)))
	defer func() { end(err) }()

	result := domain.NewBulkResult()
	docs := make([]domain.ProductDocument, 0, len(products))
	positions := make([]int, 0, len(products))

	for i := range products {
		p := &products[i]
		if err := validator.Validate(p); err != nil {
			result.Failed = append(result.Failed, domain.BulkFailure{Position: i, ID: p.ID, Reason: err.Error()})
			continue
		}
		if !domain.IsSearchable(p.Status) {
			if err := s.deleteDocument(ctx, p.ID, opts); err != nil {
				result.Failed = append(result.Failed, domain.BulkFailure{Position: i, ID: p.ID, Reason: err.Error()})
				continue
			}
			result.Succeeded = append(result.Succeeded, p.ID)
			continue
		}
		docs = append(docs, *mapper.ToDocument(p))
		positions = append(positions, i)
	}

	var (
		batches       int
		failedBatches int
		lastErr       error
	)
	for start := 0; start < len(docs); start += s.cfg.BulkBatchSize {
		stop := min(start+s.cfg.BulkBatchSize, len(docs))
		batches++

		batchResult, err := s.bulkBatch(ctx, docs[start:stop], opts)
		if err != nil {
			failedBatches++
			lastErr = err
			logger.WithContext(ctx, s.logger).WarnContext(ctx, "bulk batch failed",
				slog.Int("batch_start", start),
				slog.Int("batch_size", stop-start),
				slog.String("error", err.Error()),
			)
			for k := start; k < stop; k++ {
				result.Failed = append(result.Failed, domain.BulkFailure{
					Position: positions[k], ID: docs[k].ID, Reason: err.Error(),
				})
			}
			continue
		}

		result.Succeeded = append(result.Succeeded, batchResult.Succeeded...)
		for _, f := range batchResult.Failed {
			f.Position = positions[start+f.Position]
			result.Failed = append(result.Failed, f)
		}
	}

	if batches > 0 && failedBatches == batches {
		return nil, apperrors.Wrap(lastErr, "bulk index")
	}

	sort.SliceStable(result.Failed, func(i, j int) bool {
		return result.Failed[i].Position < result.Failed[j].Position
	})
	indexedDocuments.WithLabelValues("bulk", "ok").Add(float64(len(result.Succeeded)))
	indexedDocuments.WithLabelValues("bulk", "error").Add(float64(len(result.Failed)))

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "bulk index completed",
		slog.Int("requested", len(products)),
		slog.Int("succeeded", len(result.Succeeded)),
		slog.Int("failed", len(result.Failed)),
		slog.Int("batches", batches),
	)
	return result, nil
}

func (s *SearchService) bulkBatch(ctx context.Context, docs []domain.ProductDocument, opts engine.WriteOptions) (*domain.BulkResult, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.engine.BulkIndex(ctx, docs, s.writeOptions(opts))
}

func (s *SearchService) writeOptions(opts engine.WriteOptions) engine.WriteOptions {
	opts.Refresh = opts.Refresh || s.cfg.RefreshOnWrite
	return opts
}
