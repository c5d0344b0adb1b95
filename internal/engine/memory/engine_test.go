package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilogistic/search/internal/analysis"
	"github.com/agrilogistic/search/internal/domain"
	"github.com/agrilogistic/search/internal/engine"
	"github.com/agrilogistic/search/internal/mapper"
	apperrors "github.com/agrilogistic/search/pkg/errors"
	"github.com/agrilogistic/search/pkg/logger"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	a, err := analysis.Default()
	require.NoError(t, err)
	return New(a, engine.DefaultOptions(), logger.Discard())
}

func newTestProduct(name, category string, price float64) domain.CanonicalProduct {
	return domain.CanonicalProduct{
		ID:        uuid.New().String(),
		Name:      name,
		Category:  category,
		Price:     price,
		SellerID:  "seller-1",
		Status:    domain.StatusActive,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func index(t *testing.T, eng *Engine, products ...domain.CanonicalProduct) []domain.ProductDocument {
	t.Helper()
	docs := make([]domain.ProductDocument, 0, len(products))
	for i := range products {
		doc := mapper.ToDocument(&products[i])
		require.NoError(t, eng.Index(context.Background(), doc, engine.WriteOptions{}))
		docs = append(docs, *doc)
	}
	return docs
}

func search(t *testing.T, eng *Engine, req domain.SearchRequest) *domain.SearchResult {
	t.Helper()
	result, err := eng.Search(context.Background(), &req)
	require.NoError(t, err)
	return result
}

func ids(docs []domain.ProductDocument) []string {
	out := make([]string, len(docs))
	for i := range docs {
		out[i] = docs[i].ID
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// --- Search ---

func TestEngine_Search_OrganicTomato(t *testing.T) {
	eng := newTestEngine(t)

	bio := newTestProduct("Tomate Bio", "légume", 3)
	bio.Organic = true
	std := newTestProduct("Tomate Standard", "légume", 2)
	index(t, eng, bio, std)

	result := search(t, eng, domain.SearchRequest{Query: "tomate", Organic: boolPtr(true)})
	require.Equal(t, 1, result.Total)
	assert.Equal(t, bio.ID, result.Documents[0].ID)
	assert.Equal(t, 1, result.Facets.OrganicCount)
	assert.Equal(t, []domain.CategoryBucket{{Key: "légume", Count: 1}}, result.Facets.Categories)
}

func TestEngine_Search_WhitespaceQueryIsMatchAll(t *testing.T) {
	eng := newTestEngine(t)
	index(t, eng, newTestProduct("Mangue", "fruit", 2), newTestProduct("Ananas", "fruit", 3))

	result := search(t, eng, domain.SearchRequest{Query: "   "})
	assert.Equal(t, 2, result.Total)
}

func TestEngine_Search_NoMatch(t *testing.T) {
	eng := newTestEngine(t)
	index(t, eng, newTestProduct("Mangue", "fruit", 2))

	result := search(t, eng, domain.SearchRequest{Query: "arrosoir"})
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Documents)
	assert.NotNil(t, result.Documents)
}

func TestEngine_Search_StemmedPlural(t *testing.T) {
	eng := newTestEngine(t)
	p := newTestProduct("Pommes de terre", "tubercule", 1.5)
	index(t, eng, p)

	result := search(t, eng, domain.SearchRequest{Query: "pomme"})
	require.Equal(t, 1, result.Total)
	assert.Equal(t, p.ID, result.Documents[0].ID)
}

func TestEngine_Search_Synonyms(t *testing.T) {
	eng := newTestEngine(t)
	p := newTestProduct("Tomate biologique", "légume", 4)
	index(t, eng, p)

	for _, q := range []string{"bio", "organic", "organique"} {
		result := search(t, eng, domain.SearchRequest{Query: q})
		assert.Equal(t, 1, result.Total, "query %q", q)
	}
}

func TestEngine_Search_FuzzyTypo(t *testing.T) {
	eng := newTestEngine(t)
	p := newTestProduct("Tomate", "légume", 4)
	index(t, eng, p)

	result := search(t, eng, domain.SearchRequest{Query: "tometo"})
	require.Equal(t, 1, result.Total)

	// the first two characters must match exactly
	result = search(t, eng, domain.SearchRequest{Query: "lomate"})
	assert.Equal(t, 0, result.Total)
}

func TestEngine_Search_ShortTermIsPrefix(t *testing.T) {
	eng := newTestEngine(t)
	tomato := newTestProduct("Tomate", "légume", 4)
	index(t, eng, tomato, newTestProduct("Oignon", "légume", 1))

	result := search(t, eng, domain.SearchRequest{Query: "t"})
	require.Equal(t, 1, result.Total)
	assert.Equal(t, tomato.ID, result.Documents[0].ID)
}

func TestEngine_Search_NameOutranksDescription(t *testing.T) {
	eng := newTestEngine(t)
	inName := newTestProduct("Gingembre frais", "épice", 5)
	inDesc := newTestProduct("Tisane tonique", "boisson", 5)
	inDesc.Description = strPtr("infusion au gingembre et citron")
	index(t, eng, inDesc, inName)

	result := search(t, eng, domain.SearchRequest{Query: "gingembre"})
	require.Equal(t, 2, result.Total)
	assert.Equal(t, []string{inName.ID, inDesc.ID}, ids(result.Documents))
}

func TestEngine_Search_FiltersDoNotScore(t *testing.T) {
	eng := newTestEngine(t)
	older := newTestProduct("Arachide", "oléagineux", 2)
	older.Organic = true
	newer := newTestProduct("Sésame", "oléagineux", 2)
	newer.Organic = true
	newer.CreatedAt = baseTime.Add(time.Hour)
	index(t, eng, older, newer, newTestProduct("Soja", "oléagineux", 2))

	result := search(t, eng, domain.SearchRequest{Organic: boolPtr(true)})
	assert.Equal(t, []string{newer.ID, older.ID}, ids(result.Documents))
}

func TestEngine_Search_FilterOnlyDefaultsToNewestFirst(t *testing.T) {
	eng := newTestEngine(t)
	var products []domain.CanonicalProduct
	for i := 0; i < 3; i++ {
		p := newTestProduct(fmt.Sprintf("Riz %d", i), "céréale", 1)
		p.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		products = append(products, p)
	}
	index(t, eng, products...)

	result := search(t, eng, domain.SearchRequest{Category: strPtr("céréale")})
	assert.Equal(t, []string{products[2].ID, products[1].ID, products[0].ID}, ids(result.Documents))
}

func TestEngine_Search_ExplicitSortIgnoresScore(t *testing.T) {
	eng := newTestEngine(t)
	cheap := newTestProduct("Mangue", "fruit", 1)
	pricey := newTestProduct("Mangue Kent mangue", "fruit", 9)
	index(t, eng, pricey, cheap)

	result := search(t, eng, domain.SearchRequest{Query: "mangue", SortBy: "price", SortOrder: "asc"})
	assert.Equal(t, []string{cheap.ID, pricey.ID}, ids(result.Documents))
}

func TestEngine_Search_MissingSortValuesLast(t *testing.T) {
	eng := newTestEngine(t)
	rated := newTestProduct("Miel", "apiculture", 8)
	rated.Rating = floatPtr(4)
	unrated := newTestProduct("Cire", "apiculture", 6)
	index(t, eng, unrated, rated)

	for _, order := range []string{domain.SortAsc, domain.SortDesc} {
		result := search(t, eng, domain.SearchRequest{SortBy: "rating", SortOrder: order})
		assert.Equal(t, []string{rated.ID, unrated.ID}, ids(result.Documents), order)
	}
}

func TestEngine_Search_PriceRange(t *testing.T) {
	eng := newTestEngine(t)
	low := newTestProduct("Piment", "épice", 5)
	mid := newTestProduct("Poivre", "épice", 50)
	high := newTestProduct("Safran", "épice", 10000)
	index(t, eng, low, mid, high)

	tests := []struct {
		name     string
		min, max *float64
		want     []string
	}{
		{"min only includes arbitrarily high", floatPtr(50), nil, []string{mid.ID, high.ID}},
		{"max only includes lowest", nil, floatPtr(50), []string{low.ID, mid.ID}},
		{"inclusive bounds", floatPtr(5), floatPtr(5), []string{low.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := search(t, eng, domain.SearchRequest{MinPrice: tt.min, MaxPrice: tt.max, SortBy: "price", SortOrder: "asc"})
			assert.Equal(t, tt.want, ids(result.Documents))
		})
	}
}

func TestEngine_Search_Filters(t *testing.T) {
	eng := newTestEngine(t)
	a := newTestProduct("Gombo", "légume", 2)
	a.Tags = []string{"frais", "local"}
	a.Featured = true
	b := newTestProduct("Aubergine", "légume", 2)
	b.Tags = []string{"sec"}
	b.SellerID = "seller-2"
	c := newTestProduct("Karité", "cosmétique", 2)
	c.Status = domain.StatusInactive
	index(t, eng, a, b, c)

	tests := []struct {
		name string
		req  domain.SearchRequest
		want []string
	}{
		{"category", domain.SearchRequest{Category: strPtr("cosmétique")}, []string{c.ID}},
		{"status", domain.SearchRequest{Status: strPtr(domain.StatusInactive)}, []string{c.ID}},
		{"featured", domain.SearchRequest{Featured: boolPtr(true)}, []string{a.ID}},
		{"seller", domain.SearchRequest{SellerID: strPtr("seller-2")}, []string{b.ID}},
		{"tags any of", domain.SearchRequest{Tags: []string{"sec", "local"}}, []string{a.ID, b.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := search(t, eng, tt.req)
			assert.ElementsMatch(t, tt.want, ids(result.Documents))
		})
	}
}

func TestEngine_Search_Pagination(t *testing.T) {
	eng := newTestEngine(t)
	for i := 0; i < 5; i++ {
		index(t, eng, newTestProduct(fmt.Sprintf("Mil %d", i), "céréale", 1))
	}

	result := search(t, eng, domain.SearchRequest{Page: 2, Limit: 2})
	assert.Equal(t, 5, result.Total)
	assert.Len(t, result.Documents, 2)
	assert.Equal(t, 3, result.PageCount)

	result = search(t, eng, domain.SearchRequest{Page: 10, Limit: 2})
	assert.Equal(t, 5, result.Total)
	assert.Empty(t, result.Documents)
	assert.Equal(t, 5, result.Facets.Categories[0].Count)
}

func TestEngine_Search_OverflowingPage(t *testing.T) {
	eng := newTestEngine(t)
	index(t, eng, newTestProduct("Mil", "céréale", 1), newTestProduct("Sorgho", "céréale", 2))

	result := search(t, eng, domain.SearchRequest{Page: math.MaxInt, Limit: 100})
	assert.Equal(t, 2, result.Total)
	assert.Empty(t, result.Documents)
	assert.Equal(t, domain.MaxResultWindow/100+1, result.Page)
}

func TestEngine_Search_NonFinitePrice(t *testing.T) {
	eng := newTestEngine(t)
	index(t, eng, newTestProduct("Mil", "céréale", 1))

	nan, inf := math.NaN(), math.Inf(-1)
	for _, req := range []domain.SearchRequest{{MinPrice: &nan}, {MaxPrice: &nan}, {MinPrice: &inf}} {
		_, err := eng.Search(context.Background(), &req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidQuery))
	}
}

func TestEngine_Search_InvalidSort(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Search(context.Background(), &domain.SearchRequest{SortBy: "description"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuery))
}

func TestEngine_Search_Facets(t *testing.T) {
	eng := newTestEngine(t)
	a := newTestProduct("Datte", "fruit", 5)
	a.Rating = floatPtr(4)
	a.Featured = true
	b := newTestProduct("Figue", "fruit", 10)
	b.Rating = floatPtr(2)
	c := newTestProduct("Engrais NPK", "intrant", 100)
	index(t, eng, a, b, c)

	result := search(t, eng, domain.SearchRequest{})
	f := result.Facets
	assert.Equal(t, []domain.CategoryBucket{{Key: "fruit", Count: 2}, {Key: "intrant", Count: 1}}, f.Categories)
	require.Len(t, f.PriceRanges, 4)
	counts := map[string]int{}
	for _, r := range f.PriceRanges {
		counts[r.Key] = r.Count
	}
	assert.Equal(t, map[string]int{"under_10": 1, "10_to_50": 1, "50_to_100": 0, "100_and_above": 1}, counts)
	assert.Equal(t, 1, f.FeaturedCount)
	assert.Equal(t, 0, f.OrganicCount)
	require.NotNil(t, f.AverageRating)
	assert.InDelta(t, 3.0, *f.AverageRating, 1e-9)

	empty := search(t, eng, domain.SearchRequest{Query: "introuvable"})
	assert.Nil(t, empty.Facets.AverageRating)
	assert.Empty(t, empty.Facets.Categories)
}

// --- Writes ---

func TestEngine_Reindex_ReplacesDocument(t *testing.T) {
	eng := newTestEngine(t)
	p := newTestProduct("Oignon violet", "légume", 2)
	index(t, eng, p)
	p.Price = 3.5
	index(t, eng, p)

	assert.Equal(t, 1, eng.Len())
	result := search(t, eng, domain.SearchRequest{Query: "Oignon violet"})
	require.Equal(t, 1, result.Total)
	assert.Equal(t, 3.5, result.Documents[0].Price)
}

func TestEngine_Delete_RemovesFromResultsAndFacets(t *testing.T) {
	eng := newTestEngine(t)
	p := newTestProduct("Sorgho rouge", "céréale", 2)
	index(t, eng, p)

	require.NoError(t, eng.Delete(context.Background(), p.ID, engine.WriteOptions{}))

	result := search(t, eng, domain.SearchRequest{Query: "Sorgho rouge"})
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Facets.Categories)
}

func TestEngine_Delete_AbsentIsNotError(t *testing.T) {
	eng := newTestEngine(t)
	assert.NoError(t, eng.Delete(context.Background(), "missing", engine.WriteOptions{}))
}

func TestEngine_Index_MissingID(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.Index(context.Background(), &domain.ProductDocument{Name: "x"}, engine.WriteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrIndexWriteFailed))
}

func TestEngine_BulkIndex_PartialFailure(t *testing.T) {
	eng := newTestEngine(t)
	first := newTestProduct("Manioc doux", "tubercule", 1)
	third := newTestProduct("Igname blanche", "tubercule", 2)
	docs := []domain.ProductDocument{
		*mapper.ToDocument(&first),
		{Name: "sans identifiant"},
		*mapper.ToDocument(&third),
	}

	result, err := eng.BulkIndex(context.Background(), docs, engine.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, third.ID}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Position)

	found := search(t, eng, domain.SearchRequest{Category: strPtr("tubercule")})
	assert.ElementsMatch(t, []string{first.ID, third.ID}, ids(found.Documents))
}

func TestEngine_CanceledContext(t *testing.T) {
	eng := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Search(ctx, &domain.SearchRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))

	deadline, stop := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer stop()
	err = eng.Index(deadline, &domain.ProductDocument{ID: "x"}, engine.WriteOptions{})
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	eng := newTestEngine(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			p := newTestProduct(fmt.Sprintf("Café %d", i), "boisson", float64(i))
			doc := mapper.ToDocument(&p)
			assert.NoError(t, eng.Index(context.Background(), doc, engine.WriteOptions{}))
		}(i)
		go func() {
			defer wg.Done()
			_, err := eng.Search(context.Background(), &domain.SearchRequest{Query: "café"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, eng.Len())
}

// --- Suggest ---

func TestEngine_Suggest_Prefix(t *testing.T) {
	eng := newTestEngine(t)
	index(t, eng, newTestProduct("Maïs Hybride", "céréale", 3))

	got, err := eng.Suggest(context.Background(), "ma", nil, 10)
	require.NoError(t, err)
	assert.Contains(t, got, "Maïs Hybride")

	got, err = eng.Suggest(context.Background(), "xy", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngine_Suggest_Deduplicates(t *testing.T) {
	eng := newTestEngine(t)
	a := newTestProduct("Riz parfumé", "céréale", 3)
	b := newTestProduct("Riz parfumé", "céréale", 4)
	b.SellerID = "seller-2"
	index(t, eng, a, b)

	got, err := eng.Suggest(context.Background(), "riz", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Riz parfumé"}, got)
}

func TestEngine_Suggest_IncludesTags(t *testing.T) {
	eng := newTestEngine(t)
	p := newTestProduct("Huile rouge", "huile", 3)
	p.Tags = []string{"palme", "artisanal"}
	index(t, eng, p)

	got, err := eng.Suggest(context.Background(), "pal", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"palme"}, got)
}

func TestEngine_Suggest_CategoryScoped(t *testing.T) {
	eng := newTestEngine(t)
	index(t, eng,
		newTestProduct("Mangue", "fruit", 2),
		newTestProduct("Manioc", "tubercule", 1),
	)

	got, err := eng.Suggest(context.Background(), "man", strPtr("tubercule"), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Manioc"}, got)
}

func TestEngine_Suggest_Fuzzy(t *testing.T) {
	eng := newTestEngine(t)
	index(t, eng, newTestProduct("Tomate Bio", "légume", 3))

	got, err := eng.Suggest(context.Background(), "tomatr", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tomate Bio"}, got)
}

func TestEngine_Suggest_CappedAndExactFirst(t *testing.T) {
	eng := newTestEngine(t)
	for i := 0; i < 15; i++ {
		index(t, eng, newTestProduct(fmt.Sprintf("Banane %02d", i), "fruit", 1))
	}
	index(t, eng, newTestProduct("Bonane", "fruit", 1))

	got, err := eng.Suggest(context.Background(), "banane", nil, 50)
	require.NoError(t, err)
	assert.Len(t, got, domain.MaxSuggestions)
	assert.NotContains(t, got, "Bonane")
}

// --- MoreLikeThis ---

func TestEngine_MoreLikeThis(t *testing.T) {
	eng := newTestEngine(t)
	anchor := newTestProduct("Tomate Bio", "légume", 3)
	anchor.Tags = []string{"tomate", "bio"}
	cherry := newTestProduct("Tomate cerise", "légume", 4)
	cherry.Tags = []string{"tomate"}
	rice := newTestProduct("Riz parfumé", "céréale", 2)
	index(t, eng, anchor, cherry, rice)

	similar, err := eng.MoreLikeThis(context.Background(), anchor.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{cherry.ID}, ids(similar))
}

func TestEngine_MoreLikeThis_RanksBySharedTerms(t *testing.T) {
	eng := newTestEngine(t)
	anchor := newTestProduct("Mangue Kent", "fruit", 3)
	anchor.Description = strPtr("mangue juteuse du Sénégal")
	near := newTestProduct("Mangue Kent", "fruit", 3)
	far := newTestProduct("Papaye", "fruit", 3)
	index(t, eng, anchor, far, near)

	similar, err := eng.MoreLikeThis(context.Background(), anchor.ID, 5)
	require.NoError(t, err)
	require.NotEmpty(t, similar)
	assert.Equal(t, near.ID, similar[0].ID)
	assert.NotContains(t, ids(similar), anchor.ID)
}

func TestEngine_MoreLikeThis_MissingAnchor(t *testing.T) {
	eng := newTestEngine(t)
	p := newTestProduct("Mangue", "fruit", 2)
	index(t, eng, p)
	require.NoError(t, eng.Delete(context.Background(), p.ID, engine.WriteOptions{}))

	similar, err := eng.MoreLikeThis(context.Background(), p.ID, 5)
	require.NoError(t, err)
	assert.NotNil(t, similar)
	assert.Empty(t, similar)
}

func TestCompareField_MissingDateSortsLast(t *testing.T) {
	a := &hit{entry: &entry{doc: domain.ProductDocument{HarvestDate: timePtr(baseTime)}}}
	b := &hit{entry: &entry{doc: domain.ProductDocument{}}}
	_, aok, bok := compareField(a, b, "harvestDate")
	assert.True(t, aok)
	assert.False(t, bok)
}
