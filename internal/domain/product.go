package domain

import (
	"time"
)

// Product lifecycle statuses as owned by the catalog system-of-record.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusArchived = "archived"
)

// IsSearchable reports whether a product in the given status belongs in the
// index. Draft and archived products are removed instead of indexed.
func IsSearchable(status string) bool {
	return status == StatusActive || status == StatusInactive
}

// CanonicalProduct is the product record as published by the catalog service.
// It is assumed to be validated upstream; the tags below only guard the fields
// the index cannot live without.
type CanonicalProduct struct {
	ID               string     `json:"id" validate:"required,notblank"`
	Name             string     `json:"name" validate:"required,notblank"`
	Description      *string    `json:"description,omitempty"`
	ShortDescription *string    `json:"short_description,omitempty"`
	Category         string     `json:"category" validate:"required,notblank"`
	SubCategory      *string    `json:"sub_category,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Price            float64    `json:"price" validate:"gte=0"`
	OriginalPrice    *float64   `json:"original_price,omitempty" validate:"omitempty,gte=0"`
	Unit             *string    `json:"unit,omitempty"`
	Stock            int        `json:"stock" validate:"gte=0"`
	SKU              *string    `json:"sku,omitempty"`
	Images           []string   `json:"images,omitempty"`
	SellerID         string     `json:"seller_id" validate:"required"`
	SellerName       *string    `json:"seller_name,omitempty"`
	Rating           *float64   `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	ReviewCount      int        `json:"review_count" validate:"gte=0"`
	Certifications   []string   `json:"certifications,omitempty"`
	Organic          bool       `json:"organic"`
	Featured         bool       `json:"featured"`
	Status           string     `json:"status" validate:"required,oneof=draft active inactive archived"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	HarvestDate      *time.Time `json:"harvest_date,omitempty"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
}

// ProductDocument is the unit stored in and returned from the search index.
// Optional attributes are pointers so that "unknown" is never confused with an
// empty string in filters and aggregations.
type ProductDocument struct {
	ID               string     `json:"id" validate:"required,notblank"`
	Name             string     `json:"name" validate:"required,notblank"`
	Description      *string    `json:"description,omitempty"`
	ShortDescription *string    `json:"shortDescription,omitempty"`
	Category         string     `json:"category"`
	SubCategory      *string    `json:"subCategory,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Price            float64    `json:"price" validate:"gte=0"`
	OriginalPrice    *float64   `json:"originalPrice,omitempty"`
	Unit             *string    `json:"unit,omitempty"`
	Stock            int        `json:"stock"`
	SKU              *string    `json:"sku,omitempty"`
	Images           []string   `json:"images,omitempty"`
	SellerID         string     `json:"sellerId"`
	SellerName       *string    `json:"sellerName,omitempty"`
	Rating           *float64   `json:"rating,omitempty"`
	ReviewCount      int        `json:"reviewCount"`
	Certifications   []string   `json:"certifications,omitempty"`
	Organic          bool       `json:"organic"`
	Featured         bool       `json:"featured"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	HarvestDate      *time.Time `json:"harvestDate,omitempty"`
	ExpiryDate       *time.Time `json:"expiryDate,omitempty"`
	Suggest          Suggest    `json:"suggest"`
}

// Suggest is the completion payload derived from the name and tags, scoped by
// category context.
type Suggest struct {
	Input    []string        `json:"input"`
	Contexts SuggestContexts `json:"contexts"`
}

// SuggestContexts holds the context values a suggestion can be filtered by.
type SuggestContexts struct {
	Category []string `json:"category"`
}

// ProductPage is one page of canonical products read from the catalog service.
type ProductPage struct {
	Products   []CanonicalProduct
	Page       int
	TotalPages int
}
