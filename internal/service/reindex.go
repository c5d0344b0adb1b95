package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
	apperrors "github.com/agrilogistic/search/pkg/errors"
	"github.com/agrilogistic/search/pkg/logger"
)

// ErrReindexInProgress is returned when a reindex is requested while another
// one is still running.
var ErrReindexInProgress = errors.New("reindex already in progress")

// ErrNoCatalog is returned by Reindex when no catalog source is configured.
var ErrNoCatalog = errors.New("reindex source not configured")

// ReindexResult summarizes a full reindex. Failure positions are offsets into
// the catalog listing.
type ReindexResult struct {
	Pages      int                  `json:"pages"`
	Products   int                  `json:"products"`
	Succeeded  int                  `json:"succeeded"`
	Failed     []domain.BulkFailure `json:"failed"`
	DurationMs int64                `json:"durationMs"`
}

// Reindex walks every page of the catalog and syncs each page as one bulk
// call. Only one reindex runs at a time.
func (s *SearchService) Reindex(ctx context.Context) (*ReindexResult, error) {
	if err := s.acquireReindex(); err != nil {
		return nil, err
	}
	defer s.releaseReindex()
	return s.reindex(ctx)
}

// StartReindex admits a reindex like Reindex but runs it in the background,
// detached from ctx cancellation. done, when non-nil, receives the outcome.
func (s *SearchService) StartReindex(ctx context.Context, done func(*ReindexResult, error)) error {
	if err := s.acquireReindex(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer s.releaseReindex()
		result, err := s.reindex(ctx)
		if err != nil {
			logger.WithContext(ctx, s.logger).ErrorContext(ctx, "background reindex failed",
				slog.String("error", err.Error()),
			)
		}
		if done != nil {
			done(result, err)
		}
	}()
	return nil
}

// Reindexing reports whether a reindex is running.
func (s *SearchService) Reindexing() bool {
	return s.reindexing.Load()
}

func (s *SearchService) acquireReindex() error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	if !s.reindexing.CompareAndSwap(false, true) {
		return ErrReindexInProgress
	}
	reindexInProgress.Set(1)
	return nil
}

func (s *SearchService) releaseReindex() {
	reindexInProgress.Set(0)
	s.reindexing.Store(false)
}

func (s *SearchService) reindex(ctx context.Context) (_ *ReindexResult, err error) {
	ctx, end := s.traceOperation(ctx, "Reindex", attribute.Int("reindex.page_size", s.cfg.ReindexPageSize))
	defer func() { end(err) }()

	start := time.Now()
	log := logger.WithContext(ctx, s.logger)
	log.InfoContext(ctx, "reindex started", slog.Int("page_size", s.cfg.ReindexPageSize))

	merged := domain.NewBulkResult()
	result := &ReindexResult{}

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reindex interrupted at page %d: %w", page, err)
		}

		batch, err := s.catalog.ListProducts(ctx, page, s.cfg.ReindexPageSize)
		if err != nil {
			return nil, fmt.Errorf("reindex: fetch catalog page %d: %w", page, err)
		}
		if len(batch.Products) == 0 {
			break
		}

		pageResult, err := s.BulkIndex(ctx, batch.Products, engine.WriteOptions{})
		if err != nil {
			if apperrors.IsRetryable(err) {
				return nil, fmt.Errorf("reindex: page %d: %w", page, err)
			}
			pageResult = domain.NewBulkResult()
			for i := range batch.Products {
				pageResult.Failed = append(pageResult.Failed, domain.BulkFailure{
					Position: i, ID: batch.Products[i].ID, Reason: err.Error(),
				})
			}
		}
		merged.Merge(pageResult, result.Products)

		result.Pages++
		result.Products += len(batch.Products)
		log.DebugContext(ctx, "reindexed catalog page",
			slog.Int("page", page),
			slog.Int("total_pages", batch.TotalPages),
			slog.Int("products", len(batch.Products)),
		)

		if batch.TotalPages > 0 && page >= batch.TotalPages {
			break
		}
	}

	result.Succeeded = len(merged.Succeeded)
	result.Failed = merged.Failed
	result.DurationMs = time.Since(start).Milliseconds()

	log.InfoContext(ctx, "reindex completed",
		slog.Int("pages", result.Pages),
		slog.Int("products", result.Products),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", len(result.Failed)),
		slog.Int64("duration_ms", result.DurationMs),
	)
	return result, nil
}
