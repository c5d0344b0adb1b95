package elasticsearch

import (
	"context"
	"strconv"
	"unicode/utf8"

	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
)

// Aggregation names in the search body.
const (
	aggCategories    = "categories"
	aggPriceRanges   = "price_ranges"
	aggOrganicCount  = "organic_count"
	aggFeaturedCount = "featured_count"
	aggAverageRating = "average_rating"
)

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source domain.ProductDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations esAggregations `json:"aggregations"`
}

type esAggregations struct {
	Categories struct {
		Buckets []struct {
			Key      string `json:"key"`
			DocCount int    `json:"doc_count"`
		} `json:"buckets"`
	} `json:"categories"`
	PriceRanges struct {
		Buckets []struct {
			Key      string   `json:"key"`
			From     *float64 `json:"from"`
			To       *float64 `json:"to"`
			DocCount int      `json:"doc_count"`
		} `json:"buckets"`
	} `json:"price_ranges"`
	OrganicCount struct {
		DocCount int `json:"doc_count"`
	} `json:"organic_count"`
	FeaturedCount struct {
		DocCount int `json:"doc_count"`
	} `json:"featured_count"`
	AverageRating struct {
		Value *float64 `json:"value"`
	} `json:"average_rating"`
}

// Search executes a search request against Elasticsearch.
func (e *Engine) Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResult, error) {
	r := *req
	if err := r.Normalize(); err != nil {
		return nil, err
	}

	body := buildSearchQuery(&r, e.opts.Boosts, e.shortTerms(r.Query))

	var esResp esSearchResponse
	if err := e.search(ctx, "search", body, &esResp); err != nil {
		return nil, err
	}

	docs := make([]domain.ProductDocument, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		docs = append(docs, hit.Source)
	}

	total := esResp.Hits.Total.Value
	return &domain.SearchResult{
		Documents: docs,
		Total:     total,
		Page:      r.Page,
		Limit:     r.Limit,
		PageCount: domain.PageCount(total, r.Limit),
		Facets:    facetsFrom(&esResp.Aggregations),
		TookMs:    int64(esResp.Took),
	}, nil
}

// shortTerms returns query tokens too short to have been indexed as n-grams.
func (e *Engine) shortTerms(query string) []string {
	minGram := e.analyzer.Tables().Autocomplete.MinGram
	var out []string
	for _, t := range e.analyzer.PrefixTerms(query) {
		if utf8.RuneCountInString(t) < minGram {
			out = append(out, t)
		}
	}
	return out
}

// buildSearchQuery constructs the Elasticsearch query DSL as a map. req must
// be normalized.
func buildSearchQuery(req *domain.SearchRequest, boosts engine.Boosts, shortTerms []string) map[string]interface{} {
	var mustClause interface{}
	if req.HasText() {
		should := []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":         req.Query,
					"fields":        boostedFields(boosts),
					"type":          "best_fields",
					"operator":      "or",
					"fuzziness":     "AUTO",
					"prefix_length": 2,
				},
			},
		}
		for _, t := range shortTerms {
			should = append(should, map[string]interface{}{
				"prefix": map[string]interface{}{
					"name": map[string]interface{}{"value": t},
				},
			})
		}
		mustClause = map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": 1,
			},
		}
	} else {
		mustClause = map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	boolQuery := map[string]interface{}{
		"must": []interface{}{mustClause},
	}
	if filters := buildFilters(req); len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	from, size := req.From(), req.Limit
	if from < 0 || from >= domain.MaxResultWindow {
		from, size = 0, 0
	} else if from+size > domain.MaxResultWindow {
		size = domain.MaxResultWindow - from
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
		"from":             from,
		"size":             size,
		"track_total_hits": true,
		"sort":             buildSort(req),
		"aggs":             buildAggregations(),
	}
}

func boostedFields(b engine.Boosts) []string {
	weighted := []struct {
		field string
		boost float64
	}{
		{"name", b.Name},
		{"name.autocomplete", b.Autocomplete},
		{"tags.text", b.Tags},
		{"description", b.Description},
		{"sellerName", b.SellerName},
	}
	fields := make([]string, 0, len(weighted))
	for _, w := range weighted {
		switch {
		case w.boost <= 0:
		case w.boost == 1:
			fields = append(fields, w.field)
		default:
			fields = append(fields, w.field+"^"+strconv.FormatFloat(w.boost, 'f', -1, 64))
		}
	}
	return fields
}

// buildFilters constructs the non-scoring filter clauses.
func buildFilters(req *domain.SearchRequest) []interface{} {
	var filters []interface{}
	term := func(field string, value interface{}) {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{field: value},
		})
	}

	if req.Category != nil {
		term("category", *req.Category)
	}
	if req.Status != nil {
		term("status", *req.Status)
	}
	if req.Organic != nil {
		term("organic", *req.Organic)
	}
	if req.Featured != nil {
		term("featured", *req.Featured)
	}
	if req.SellerID != nil {
		term("sellerId", *req.SellerID)
	}
	if len(req.Tags) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"tags": req.Tags},
		})
	}

	if req.MinPrice != nil || req.MaxPrice != nil {
		rangeFilter := map[string]interface{}{}
		if req.MinPrice != nil {
			rangeFilter["gte"] = *req.MinPrice
		}
		if req.MaxPrice != nil {
			rangeFilter["lte"] = *req.MaxPrice
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"price": rangeFilter},
		})
	}

	return filters
}

// buildSort sorts by the effective field; documents missing it come last.
func buildSort(req *domain.SearchRequest) []interface{} {
	field, order := req.EffectiveSort()
	if field == domain.SortFieldScore {
		return []interface{}{
			map[string]interface{}{"_score": map[string]interface{}{"order": order}},
		}
	}
	return []interface{}{
		map[string]interface{}{field: map[string]interface{}{"order": order, "missing": "_last"}},
	}
}

func buildAggregations() map[string]interface{} {
	ranges := make([]interface{}, 0, len(domain.PriceBands))
	for _, band := range domain.PriceBands {
		r := map[string]interface{}{"key": band.Key}
		if band.From != nil {
			r["from"] = *band.From
		}
		if band.To != nil {
			r["to"] = *band.To
		}
		ranges = append(ranges, r)
	}

	return map[string]interface{}{
		aggCategories: map[string]interface{}{
			"terms": map[string]interface{}{"field": "category", "size": domain.MaxCategoryFacetCount},
		},
		aggPriceRanges: map[string]interface{}{
			"range": map[string]interface{}{"field": "price", "ranges": ranges},
		},
		aggOrganicCount: map[string]interface{}{
			"filter": map[string]interface{}{"term": map[string]interface{}{"organic": true}},
		},
		aggFeaturedCount: map[string]interface{}{
			"filter": map[string]interface{}{"term": map[string]interface{}{"featured": true}},
		},
		aggAverageRating: map[string]interface{}{
			"avg": map[string]interface{}{"field": "rating"},
		},
	}
}

func facetsFrom(aggs *esAggregations) domain.Facets {
	facets := domain.Facets{
		Categories:    make([]domain.CategoryBucket, 0, len(aggs.Categories.Buckets)),
		PriceRanges:   make([]domain.PriceRangeBucket, 0, len(aggs.PriceRanges.Buckets)),
		OrganicCount:  aggs.OrganicCount.DocCount,
		FeaturedCount: aggs.FeaturedCount.DocCount,
		AverageRating: aggs.AverageRating.Value,
	}
	for _, b := range aggs.Categories.Buckets {
		facets.Categories = append(facets.Categories, domain.CategoryBucket{Key: b.Key, Count: b.DocCount})
	}
	for _, b := range aggs.PriceRanges.Buckets {
		facets.PriceRanges = append(facets.PriceRanges, domain.PriceRangeBucket{
			Key: b.Key, From: b.From, To: b.To, Count: b.DocCount,
		})
	}
	return facets
}
