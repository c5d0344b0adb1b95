package domain

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	apperrors "github.com/agrilogistic/search/pkg/errors"
)

// Paging and result-size limits.
const (
	DefaultLimit          = 20
	MaxLimit              = 100
	MinPrefixLength       = 2
	MaxSuggestions        = 10
	DefaultSimilarLimit   = 5
	MaxSimilarLimit       = 50
	MaxCategoryFacetCount = 50

	// MaxResultWindow bounds from+size; pages past it come back empty.
	MaxResultWindow = 10000
)

// Sort orders.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Sort targets understood by the engines besides document fields.
const (
	SortFieldScore     = "_score"
	SortFieldCreatedAt = "createdAt"
)

// sortableFields maps the public sortBy values to index fields.
var sortableFields = map[string]string{
	"price":         "price",
	"originalPrice": "originalPrice",
	"rating":        "rating",
	"reviewCount":   "reviewCount",
	"stock":         "stock",
	"createdAt":     "createdAt",
	"updatedAt":     "updatedAt",
	"harvestDate":   "harvestDate",
	"expiryDate":    "expiryDate",
	"name":          "name.exact",
}

// SearchRequest is the structured input of a catalog search. Nil filters are
// not applied; the status filter is never defaulted here.
type SearchRequest struct {
	Query     string   `json:"query"`
	Category  *string  `json:"category,omitempty"`
	Status    *string  `json:"status,omitempty"`
	Organic   *bool    `json:"organic,omitempty"`
	Featured  *bool    `json:"featured,omitempty"`
	SellerID  *string  `json:"sellerId,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	MinPrice  *float64 `json:"minPrice,omitempty"`
	MaxPrice  *float64 `json:"maxPrice,omitempty"`
	SortBy    string   `json:"sortBy,omitempty"`
	SortOrder string   `json:"sortOrder,omitempty"`
	Page      int      `json:"page"`
	Limit     int      `json:"limit"`
}

// Normalize trims the free text, applies paging defaults and validates sort
// and price parameters. It returns an InvalidQuery error on bad input.
func (r *SearchRequest) Normalize() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	if maxPage := MaxResultWindow/r.Limit + 1; r.Page > maxPage {
		r.Page = maxPage
	}

	if r.SortBy != "" {
		if _, ok := sortableFields[r.SortBy]; !ok {
			return apperrors.InvalidQuery(fmt.Sprintf("sortBy %q is not sortable", r.SortBy))
		}
	}
	switch strings.ToLower(r.SortOrder) {
	case "":
		r.SortOrder = SortDesc
	case SortAsc, SortDesc:
		r.SortOrder = strings.ToLower(r.SortOrder)
	default:
		return apperrors.InvalidQuery("sortOrder must be asc or desc")
	}

	if !finite(r.MinPrice) {
		return apperrors.InvalidQuery("minPrice must be a finite number")
	}
	if !finite(r.MaxPrice) {
		return apperrors.InvalidQuery("maxPrice must be a finite number")
	}
	if r.MinPrice != nil && r.MaxPrice != nil && *r.MinPrice > *r.MaxPrice {
		return apperrors.InvalidQuery("minPrice must not exceed maxPrice")
	}

	tags := r.Tags[:0:0]
	for _, t := range r.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	r.Tags = tags
	return nil
}

// HasText reports whether the request carries free text to rank by.
func (r *SearchRequest) HasText() bool {
	return strings.TrimSpace(r.Query) != ""
}

func finite(f *float64) bool {
	return f == nil || !(math.IsNaN(*f) || math.IsInf(*f, 0))
}

// From returns the zero-based offset of the requested page. It is never
// negative.
func (r *SearchRequest) From() int {
	if r.Page < 1 || r.Limit < 1 {
		return 0
	}
	if r.Page-1 > MaxResultWindow/r.Limit {
		return MaxResultWindow
	}
	return (r.Page - 1) * r.Limit
}

// EffectiveSort resolves the sort field and order: an explicit sortBy wins,
// then relevance when text is present, then newest first.
func (r *SearchRequest) EffectiveSort() (field, order string) {
	if r.SortBy != "" {
		order = r.SortOrder
		if order == "" {
			order = SortDesc
		}
		return sortableFields[r.SortBy], order
	}
	if r.HasText() {
		return SortFieldScore, SortDesc
	}
	return SortFieldCreatedAt, SortDesc
}

// ValidatePrefix checks the autocomplete precondition.
func ValidatePrefix(prefix string) error {
	if utf8.RuneCountInString(strings.TrimSpace(prefix)) < MinPrefixLength {
		return apperrors.InvalidQuery(fmt.Sprintf("prefix must be at least %d characters", MinPrefixLength))
	}
	return nil
}

// SearchResult holds one page of documents plus facets over the filtered set.
type SearchResult struct {
	Documents []ProductDocument `json:"documents"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
	PageCount int               `json:"pageCount"`
	Facets    Facets            `json:"facets"`
	TookMs    int64             `json:"tookMs"`
}

// PageCount returns the number of pages needed for total hits.
func PageCount(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	n := total / limit
	if total%limit > 0 {
		n++
	}
	return n
}

// Facets is the aggregation block returned with every search.
type Facets struct {
	Categories    []CategoryBucket   `json:"categories"`
	PriceRanges   []PriceRangeBucket `json:"priceRanges"`
	OrganicCount  int                `json:"organicCount"`
	FeaturedCount int                `json:"featuredCount"`
	AverageRating *float64           `json:"averageRating,omitempty"`
}

// CategoryBucket counts documents per category.
type CategoryBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// PriceRangeBucket counts documents in one price band.
type PriceRangeBucket struct {
	Key   string   `json:"key"`
	From  *float64 `json:"from,omitempty"`
	To    *float64 `json:"to,omitempty"`
	Count int      `json:"count"`
}

// PriceBand is a half-open [From, To) price interval; nil bounds are open.
type PriceBand struct {
	Key  string
	From *float64
	To   *float64
}

// Contains reports whether price falls in the band.
func (b PriceBand) Contains(price float64) bool {
	if b.From != nil && price < *b.From {
		return false
	}
	if b.To != nil && price >= *b.To {
		return false
	}
	return true
}

func bound(v float64) *float64 { return &v }

// PriceBands are the fixed facet bands: <10, 10–50, 50–100, ≥100.
var PriceBands = []PriceBand{
	{Key: "under_10", To: bound(10)},
	{Key: "10_to_50", From: bound(10), To: bound(50)},
	{Key: "50_to_100", From: bound(50), To: bound(100)},
	{Key: "100_and_above", From: bound(100)},
}

// BulkFailure describes one document that could not be indexed.
type BulkFailure struct {
	Position int    `json:"position"`
	ID       string `json:"id,omitempty"`
	Reason   string `json:"reason"`
}

// BulkResult reports per-document outcomes of a bulk operation.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// NewBulkResult returns an empty result with non-nil slices.
func NewBulkResult() *BulkResult {
	return &BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
}

// Merge appends other's outcomes, shifting failure positions by offset.
func (r *BulkResult) Merge(other *BulkResult, offset int) {
	if other == nil {
		return
	}
	r.Succeeded = append(r.Succeeded, other.Succeeded...)
	for _, f := range other.Failed {
		f.Position += offset
		r.Failed = append(r.Failed, f)
	}
}
