// Package service implements the search use cases on top of a SearchEngine.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
	apperrors "github.com/agrilogistic/search/pkg/errors"
	"github.com/agrilogistic/search/pkg/logger"
)

// Config holds the tunables of the search service.
type Config struct {
	// StoreTimeout bounds every individual call to the search store.
	StoreTimeout time.Duration
	// BulkBatchSize caps the number of documents sent in one bulk request.
	BulkBatchSize int
	// RefreshOnWrite forces synchronous visibility for every write.
	RefreshOnWrite bool
	// ReindexPageSize is the number of products requested per catalog page.
	ReindexPageSize int
	// SlowOperationThreshold enables slow operation logging when positive.
	SlowOperationThreshold time.Duration
}

// DefaultConfig returns the default service tunables.
func DefaultConfig() Config {
	return Config{
		StoreTimeout:           5 * time.Second,
		BulkBatchSize:          500,
		ReindexPageSize:        200,
		SlowOperationThreshold: time.Second,
	}
}

// CatalogSource pages through the catalog system-of-record.
type CatalogSource interface {
	ListProducts(ctx context.Context, page, perPage int) (*domain.ProductPage, error)
}

// SearchService implements the business logic for search operations.
type SearchService struct {
	engine     engine.SearchEngine
	catalog    CatalogSource
	cfg        Config
	logger     *slog.Logger
	reindexing atomic.Bool
}

// NewSearchService creates a new search service. catalog may be nil, in which
// case Reindex is unavailable.
func NewSearchService(eng engine.SearchEngine, catalog CatalogSource, cfg Config, logger *slog.Logger) *SearchService {
	if cfg.BulkBatchSize <= 0 {
		cfg.BulkBatchSize = DefaultConfig().BulkBatchSize
	}
	if cfg.ReindexPageSize <= 0 {
		cfg.ReindexPageSize = DefaultConfig().ReindexPageSize
	}
	return &SearchService{
		engine:  eng,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
	}
}

// EnsureIndex creates the index if it is missing. It is called once at startup.
func (s *SearchService) EnsureIndex(ctx context.Context) (err error) {
	ctx, end := s.traceOperation(ctx, "EnsureIndex")
	defer func() { end(err) }()

	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.engine.EnsureIndex(ctx)
}

// Search executes a search request. The request is normalized in place so the
// caller sees the effective page and limit.
func (s *SearchService) Search(ctx context.Context, req *domain.SearchRequest) (_ *domain.SearchResult, err error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	ctx, end := s.traceOperation(ctx, "Search",
		attribute.String("search.query", req.Query),
		attribute.Int("search.page", req.Page),
		attribute.Int("search.limit", req.Limit),
	)
	defer func() { end(err) }()

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	result, err := s.engine.Search(ctx, req)
	if err != nil {
		return nil, apperrors.Wrap(err, "search")
	}

	logger.WithContext(ctx, s.logger).DebugContext(ctx, "search executed",
		slog.String("query", req.Query),
		slog.Int("total", result.Total),
		slog.Int64("took_ms", result.TookMs),
	)
	return result, nil
}

// Autocomplete returns up to ten completion strings for prefix, optionally
// scoped to a category.
func (s *SearchService) Autocomplete(ctx context.Context, prefix string, category *string) (_ []string, err error) {
	if err := domain.ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	prefix = strings.TrimSpace(prefix)
	if category != nil && strings.TrimSpace(*category) == "" {
		category = nil
	}

	ctx, end := s.traceOperation(ctx, "Autocomplete", attribute.String("search.prefix", prefix))
	defer func() { end(err) }()

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	suggestions, err := s.engine.Suggest(ctx, prefix, category, domain.MaxSuggestions)
	if err != nil {
		return nil, apperrors.Wrap(err, "autocomplete")
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	return suggestions, nil
}

// Similar returns documents similar to the indexed product id. limit defaults
// to five; an id that is not indexed yields an empty list.
func (s *SearchService) Similar(ctx context.Context, id string, limit int) (_ []domain.ProductDocument, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.InvalidQuery("product id is required")
	}
	if limit <= 0 {
		limit = domain.DefaultSimilarLimit
	}
	limit = min(limit, domain.MaxSimilarLimit)

	ctx, end := s.traceOperation(ctx, "Similar", attribute.String("product.id", id))
	defer func() { end(err) }()

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	docs, err := s.engine.MoreLikeThis(ctx, id, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "similar products")
	}
	if docs == nil {
		docs = []domain.ProductDocument{}
	}
	return docs, nil
}

// Ping reports whether the search store is reachable.
func (s *SearchService) Ping(ctx context.Context) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.engine.Ping(ctx)
}
