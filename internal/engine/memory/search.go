package memory

import (
	"cmp"
	"context"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agrilogistic/search/internal/domain"
)

// fuzzyPrefixLength is the number of leading runes that must match exactly
// before fuzziness applies.
const fuzzyPrefixLength = 2

type hit struct {
	*entry
	score float64
}

type fieldQuery struct {
	field string
	boost float64
	terms [][]rune
}

// textQuery is a compiled best_fields multi-match plus literal prefix clauses
// for terms shorter than the minimum n-gram.
type textQuery struct {
	fields   []fieldQuery
	prefixes []string
	idf      map[string]map[string]float64
}

// Search executes a search request against the in-memory index.
func (e *Engine) Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResult, error) {
	if err := checkContext(ctx, "memory search"); err != nil {
		return nil, err
	}
	r := *req
	if err := r.Normalize(); err != nil {
		return nil, err
	}
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	var q *textQuery
	if r.HasText() {
		q = e.compileText(r.Query)
	}

	hits := make([]hit, 0)
	for _, en := range e.docs {
		if !matchesFilters(&en.doc, &r) {
			continue
		}
		var score float64
		if q != nil {
			if score = q.score(en); score <= 0 {
				continue
			}
		}
		hits = append(hits, hit{entry: en, score: score})
	}

	field, order := r.EffectiveSort()
	sortHits(hits, field, order)

	total := len(hits)
	docs := make([]domain.ProductDocument, 0, r.Limit)
	if from := r.From(); from >= 0 && from < min(total, domain.MaxResultWindow) {
		end := min(from+r.Limit, total, domain.MaxResultWindow)
		for _, h := range hits[from:end] {
			docs = append(docs, h.doc)
		}
	}

	return &domain.SearchResult{
		Documents: docs,
		Total:     total,
		Page:      r.Page,
		Limit:     r.Limit,
		PageCount: domain.PageCount(total, r.Limit),
		Facets:    buildFacets(hits),
		TookMs:    time.Since(start).Milliseconds(),
	}, nil
}

// compileText analyzes the query per field and precomputes term rarity.
// Caller must hold the read lock.
func (e *Engine) compileText(text string) *textQuery {
	a := e.analyzer
	b := e.opts.Boosts
	analyzed := a.Terms(text)
	prefixTerms := a.PrefixTerms(text)

	q := &textQuery{
		fields: []fieldQuery{
			{field: fieldName, boost: b.Name, terms: toRunes(analyzed)},
			{field: fieldAutocomplete, boost: b.Autocomplete, terms: toRunes(prefixTerms)},
			{field: fieldTags, boost: b.Tags, terms: toRunes(analyzed)},
			{field: fieldDescription, boost: b.Description, terms: toRunes(analyzed)},
			{field: fieldSellerName, boost: b.SellerName, terms: toRunes(analyzed)},
		},
		idf: make(map[string]map[string]float64),
	}
	minGram := a.Tables().Autocomplete.MinGram
	for _, t := range prefixTerms {
		if utf8.RuneCountInString(t) < minGram {
			q.prefixes = append(q.prefixes, t)
		}
	}

	n := float64(len(e.docs))
	for _, fq := range q.fields {
		weights := make(map[string]float64, len(fq.terms))
		for _, t := range fq.terms {
			term := string(t)
			df := 0
			for _, en := range e.docs {
				if containsTerm(en.fields[fq.field], term) {
					df++
				}
			}
			weights[term] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		}
		q.idf[fq.field] = weights
	}
	return q
}

// score returns the best single-field score plus one per matching prefix
// clause; zero means no match.
func (q *textQuery) score(en *entry) float64 {
	best := 0.0
	for _, fq := range q.fields {
		if fq.boost <= 0 {
			continue
		}
		s := fq.boost * fieldScore(en.fields[fq.field], fq.terms, q.idf[fq.field])
		best = max(best, s)
	}
	for _, p := range q.prefixes {
		for _, t := range en.fields[fieldName] {
			if strings.HasPrefix(t, p) {
				best++
				break
			}
		}
	}
	return best
}

// fieldScore sums, over query terms, the weight of the closest indexed term:
// full weight for an exact match, reduced by edit distance for a fuzzy one.
func fieldScore(indexed []string, query [][]rune, idf map[string]float64) float64 {
	if len(indexed) == 0 {
		return 0
	}
	var total float64
	for _, qt := range query {
		term := string(qt)
		if containsTerm(indexed, term) {
			total += idf[term]
			continue
		}
		bestEdits := -1
		for _, it := range indexed {
			if d, ok := fuzzyMatch(qt, []rune(it), fuzzyPrefixLength); ok && (bestEdits < 0 || d < bestEdits) {
				bestEdits = d
			}
		}
		if bestEdits > 0 {
			total += idf[term] * (1 - float64(bestEdits)/float64(len(qt)))
		}
	}
	return total
}

func matchesFilters(d *domain.ProductDocument, r *domain.SearchRequest) bool {
	if r.Category != nil && d.Category != *r.Category {
		return false
	}
	if r.Status != nil && d.Status != *r.Status {
		return false
	}
	if r.Organic != nil && d.Organic != *r.Organic {
		return false
	}
	if r.Featured != nil && d.Featured != *r.Featured {
		return false
	}
	if r.SellerID != nil && d.SellerID != *r.SellerID {
		return false
	}
	if len(r.Tags) > 0 && !anyTag(d.Tags, r.Tags) {
		return false
	}
	if r.MinPrice != nil && d.Price < *r.MinPrice {
		return false
	}
	if r.MaxPrice != nil && d.Price > *r.MaxPrice {
		return false
	}
	return true
}

func anyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// sortHits orders by field, documents missing the field last in either
// direction, ties by insertion order.
func sortHits(hits []hit, field, order string) {
	sort.SliceStable(hits, func(i, j int) bool {
		c, iok, jok := compareField(&hits[i], &hits[j], field)
		if iok != jok {
			return iok
		}
		if c != 0 {
			if order == domain.SortAsc {
				return c < 0
			}
			return c > 0
		}
		return hits[i].seq < hits[j].seq
	})
}

func compareField(a, b *hit, field string) (int, bool, bool) {
	x, y := &a.doc, &b.doc
	switch field {
	case domain.SortFieldScore:
		return cmp.Compare(a.score, b.score), true, true
	case "price":
		return cmp.Compare(x.Price, y.Price), true, true
	case "originalPrice":
		return comparePtr(x.OriginalPrice, y.OriginalPrice)
	case "rating":
		return comparePtr(x.Rating, y.Rating)
	case "reviewCount":
		return cmp.Compare(x.ReviewCount, y.ReviewCount), true, true
	case "stock":
		return cmp.Compare(x.Stock, y.Stock), true, true
	case "createdAt":
		return x.CreatedAt.Compare(y.CreatedAt), true, true
	case "updatedAt":
		return x.UpdatedAt.Compare(y.UpdatedAt), true, true
	case "harvestDate":
		return compareTime(x.HarvestDate, y.HarvestDate)
	case "expiryDate":
		return compareTime(x.ExpiryDate, y.ExpiryDate)
	case "name.exact":
		return strings.Compare(x.Name, y.Name), true, true
	}
	return 0, true, true
}

func comparePtr(a, b *float64) (int, bool, bool) {
	if a == nil || b == nil {
		return 0, a != nil, b != nil
	}
	return cmp.Compare(*a, *b), true, true
}

func compareTime(a, b *time.Time) (int, bool, bool) {
	if a == nil || b == nil {
		return 0, a != nil, b != nil
	}
	return a.Compare(*b), true, true
}

// buildFacets aggregates over every hit, not only the returned page.
func buildFacets(hits []hit) domain.Facets {
	counts := make(map[string]int)
	bands := make([]int, len(domain.PriceBands))
	facets := domain.Facets{}
	var ratingSum float64
	var rated int

	for _, h := range hits {
		d := &h.doc
		if d.Category != "" {
			counts[d.Category]++
		}
		for i, band := range domain.PriceBands {
			if band.Contains(d.Price) {
				bands[i]++
			}
		}
		if d.Organic {
			facets.OrganicCount++
		}
		if d.Featured {
			facets.FeaturedCount++
		}
		if d.Rating != nil {
			ratingSum += *d.Rating
			rated++
		}
	}

	facets.Categories = make([]domain.CategoryBucket, 0, len(counts))
	for k, n := range counts {
		facets.Categories = append(facets.Categories, domain.CategoryBucket{Key: k, Count: n})
	}
	sort.Slice(facets.Categories, func(i, j int) bool {
		a, b := facets.Categories[i], facets.Categories[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Key < b.Key
	})
	if len(facets.Categories) > domain.MaxCategoryFacetCount {
		facets.Categories = facets.Categories[:domain.MaxCategoryFacetCount]
	}

	facets.PriceRanges = make([]domain.PriceRangeBucket, len(domain.PriceBands))
	for i, band := range domain.PriceBands {
		facets.PriceRanges[i] = domain.PriceRangeBucket{Key: band.Key, From: band.From, To: band.To, Count: bands[i]}
	}

	if rated > 0 {
		avg := ratingSum / float64(rated)
		facets.AverageRating = &avg
	}
	return facets
}

func containsTerm(terms []string, term string) bool {
	for _, t := range terms {
		if t == term {
			return true
		}
	}
	return false
}

func toRunes(terms []string) [][]rune {
	out := make([][]rune, len(terms))
	for i, t := range terms {
		out[i] = []rune(t)
	}
	return out
}
