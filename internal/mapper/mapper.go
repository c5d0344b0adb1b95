// Package mapper converts canonical catalog products into index documents.
package mapper

import (
	"strings"

	"github.com/agrilogistic/search/internal/domain"
)

// ToDocument maps a canonical product to its index document. It is pure: the
// same input always yields an equal document and the input is never retained.
// Callers are expected to have validated p.
func ToDocument(p *domain.CanonicalProduct) *domain.ProductDocument {
	doc := &domain.ProductDocument{
		ID:               p.ID,
		Name:             p.Name,
		Description:      cloneString(p.Description),
		ShortDescription: cloneString(p.ShortDescription),
		Category:         p.Category,
		SubCategory:      cloneString(p.SubCategory),
		Tags:             cloneStrings(p.Tags),
		Price:            p.Price,
		OriginalPrice:    cloneFloat(p.OriginalPrice),
		Unit:             cloneString(p.Unit),
		Stock:            p.Stock,
		SKU:              cloneString(p.SKU),
		Images:           cloneStrings(p.Images),
		SellerID:         p.SellerID,
		SellerName:       cloneString(p.SellerName),
		Rating:           cloneFloat(p.Rating),
		ReviewCount:      p.ReviewCount,
		Certifications:   cloneStrings(p.Certifications),
		Organic:          p.Organic,
		Featured:         p.Featured,
		Status:           p.Status,
		CreatedAt:        p.CreatedAt.UTC(),
		UpdatedAt:        p.UpdatedAt.UTC(),
	}
	if p.HarvestDate != nil {
		t := p.HarvestDate.UTC()
		doc.HarvestDate = &t
	}
	if p.ExpiryDate != nil {
		t := p.ExpiryDate.UTC()
		doc.ExpiryDate = &t
	}
	doc.Suggest = suggestFor(p)
	return doc
}

// ToDocuments maps a batch, preserving order.
func ToDocuments(products []domain.CanonicalProduct) []domain.ProductDocument {
	docs := make([]domain.ProductDocument, 0, len(products))
	for i := range products {
		docs = append(docs, *ToDocument(&products[i]))
	}
	return docs
}

// suggestFor builds completion inputs from the name followed by the tags,
// dropping blanks and case-insensitive duplicates.
func suggestFor(p *domain.CanonicalProduct) domain.Suggest {
	inputs := make([]string, 0, 1+len(p.Tags))
	seen := make(map[string]bool, 1+len(p.Tags))
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			return
		}
		seen[key] = true
		inputs = append(inputs, s)
	}
	add(p.Name)
	for _, tag := range p.Tags {
		add(tag)
	}
	return domain.Suggest{
		Input:    inputs,
		Contexts: domain.SuggestContexts{Category: []string{p.Category}},
	}
}

// cloneString copies s; blank values are dropped.
func cloneString(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// cloneStrings copies in without blank entries, returning nil when none are
// left.
func cloneStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
