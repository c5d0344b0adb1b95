package engine

import (
	"context"

	"github.com/agrilogistic/search/internal/domain"
)

// WriteOptions control the visibility of a write.
type WriteOptions struct {
	// Refresh makes the write visible to searches before the call returns.
	Refresh bool
}

// SearchEngine defines the interface for indexing and searching products.
// Implementations must be safe for concurrent use.
type SearchEngine interface {
	// EnsureIndex creates the index with its schema if it does not exist yet.
	// An existing index is never modified.
	EnsureIndex(ctx context.Context) error

	// Ping checks that the underlying store is reachable.
	Ping(ctx context.Context) error

	// Index upserts a single document by ID, replacing any prior version.
	Index(ctx context.Context, doc *domain.ProductDocument, opts WriteOptions) error

	// Delete removes a document by ID. Deleting an absent ID is not an error.
	Delete(ctx context.Context, id string, opts WriteOptions) error

	// BulkIndex upserts many documents in one request and reports per-document
	// outcomes. The error is non-nil only when the request as a whole failed.
	BulkIndex(ctx context.Context, docs []domain.ProductDocument, opts WriteOptions) (*domain.BulkResult, error)

	// Search executes a normalized search request.
	Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResult, error)

	// Suggest returns up to size completion strings for prefix, optionally
	// scoped to a category.
	Suggest(ctx context.Context, prefix string, category *string, size int) ([]string, error)

	// MoreLikeThis returns up to limit documents similar to the indexed
	// document id. A missing anchor yields an empty slice.
	MoreLikeThis(ctx context.Context, id string, limit int) ([]domain.ProductDocument, error)
}

// Boosts weight the text fields of the relevance query.
type Boosts struct {
	Name         float64
	Autocomplete float64
	Tags         float64
	Description  float64
	SellerName   float64
}

// DefaultBoosts are starting points rather than tuned values.
func DefaultBoosts() Boosts {
	return Boosts{Name: 3, Autocomplete: 2, Tags: 1.5, Description: 1, SellerName: 1}
}

// SimilarityParams bound the term selection of more-like-this queries.
type SimilarityParams struct {
	MinTermFreq   int
	MinDocFreq    int
	MaxQueryTerms int
}

// DefaultSimilarityParams returns the default more-like-this parameters.
func DefaultSimilarityParams() SimilarityParams {
	return SimilarityParams{MinTermFreq: 1, MinDocFreq: 1, MaxQueryTerms: 12}
}

// MissingID is the failure reason reported for a bulk item without an ID.
const MissingID = "document id is required"

// Options are the ranking parameters shared by all engine implementations.
type Options struct {
	Boosts     Boosts
	Similarity SimilarityParams
}

// DefaultOptions returns the default ranking parameters.
func DefaultOptions() Options {
	return Options{Boosts: DefaultBoosts(), Similarity: DefaultSimilarityParams()}
}
