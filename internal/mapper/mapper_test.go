package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilogistic/search/internal/domain"
)

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

func sampleProduct() *domain.CanonicalProduct {
	harvest := time.Date(2024, 6, 1, 8, 0, 0, 0, time.FixedZone("WAT", 3600))
	return &domain.CanonicalProduct{
		ID:          "prod-1",
		Name:        "Tomate Bio",
		Description: strPtr("Tomates rondes cultivées sans pesticides"),
		Category:    "legumes",
		Tags:        []string{"tomate", "bio", "  ", "Tomate Bio"},
		Price:       4.5,
		Rating:      floatPtr(4.2),
		SellerID:    "seller-9",
		SellerName:  strPtr("Ferme Diallo"),
		Organic:     true,
		Status:      domain.StatusActive,
		CreatedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		HarvestDate: &harvest,
	}
}

func TestToDocument_CopiesFields(t *testing.T) {
	p := sampleProduct()
	doc := ToDocument(p)

	assert.Equal(t, "prod-1", doc.ID)
	assert.Equal(t, "Tomate Bio", doc.Name)
	assert.Equal(t, "legumes", doc.Category)
	assert.Equal(t, 4.5, doc.Price)
	require.NotNil(t, doc.Rating)
	assert.Equal(t, 4.2, *doc.Rating)
	assert.Nil(t, doc.OriginalPrice)
	assert.Nil(t, doc.SubCategory)
	assert.True(t, doc.Organic)
	assert.Equal(t, domain.StatusActive, doc.Status)
	require.NotNil(t, doc.HarvestDate)
	assert.Equal(t, time.UTC, doc.HarvestDate.Location())
	assert.True(t, p.HarvestDate.Equal(*doc.HarvestDate))
}

func TestToDocument_Suggest(t *testing.T) {
	doc := ToDocument(sampleProduct())

	assert.Equal(t, []string{"Tomate Bio", "tomate", "bio"}, doc.Suggest.Input)
	assert.Equal(t, []string{"legumes"}, doc.Suggest.Contexts.Category)
}

func TestToDocument_DoesNotAliasInput(t *testing.T) {
	p := sampleProduct()
	doc := ToDocument(p)

	p.Tags[0] = "changed"
	*p.Description = "changed"
	*p.Rating = 1

	assert.Equal(t, "tomate", doc.Tags[0])
	assert.Equal(t, "Tomates rondes cultivées sans pesticides", *doc.Description)
	assert.Equal(t, 4.2, *doc.Rating)
}

func TestToDocument_Deterministic(t *testing.T) {
	a, err := json.Marshal(ToDocument(sampleProduct()))
	require.NoError(t, err)
	b, err := json.Marshal(ToDocument(sampleProduct()))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestToDocument_OmitsUnknownOptionals(t *testing.T) {
	p := sampleProduct()
	p.Description = nil
	p.SellerName = nil
	p.Rating = nil
	p.SubCategory = strPtr("")
	p.Unit = strPtr("  ")
	p.Tags = []string{"", "rouge"}
	p.Certifications = []string{"", " "}

	doc := ToDocument(p)
	assert.Nil(t, doc.SubCategory)
	assert.Equal(t, []string{"rouge"}, doc.Tags)
	assert.Nil(t, doc.Certifications)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.NotContains(t, m, "description")
	assert.NotContains(t, m, "sellerName")
	assert.NotContains(t, m, "rating")
	assert.NotContains(t, m, "subCategory")
	assert.NotContains(t, m, "unit")
	assert.NotContains(t, m, "certifications")
	assert.Equal(t, []any{"rouge"}, m["tags"])
	assert.Contains(t, m, "suggest")
}

func TestToDocuments_PreservesOrder(t *testing.T) {
	a, b := *sampleProduct(), *sampleProduct()
	b.ID = "prod-2"
	docs := ToDocuments([]domain.CanonicalProduct{a, b})
	require.Len(t, docs, 2)
	assert.Equal(t, "prod-1", docs[0].ID)
	assert.Equal(t, "prod-2", docs[1].ID)
}
