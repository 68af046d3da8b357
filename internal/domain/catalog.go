package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hanko-field/catalog/internal/platform/textutil"
)

const (
	// UncategorizedID is assigned to items whose document carries no category.
	UncategorizedID = "uncategorized"
	// UntitledName is the display name used when a document has no name.
	UntitledName = "Untitled product"
	// DefaultPageSize is applied when a filter request leaves the page size unset.
	DefaultPageSize = 12
	// MaxPageSize caps the page size accepted from callers.
	MaxPageSize = 100
)

// RawDocument is an untyped record exactly as the document store returned it.
type RawDocument struct {
	ID     string
	Fields map[string]any
}

// TokenSet is a case-preserving, de-duplicated list of tag-like tokens.
type TokenSet []string

// ContainsFold reports whether the set holds token, ignoring case and diacritics.
func (s TokenSet) ContainsFold(token string) bool {
	want := textutil.Fold(token)
	for _, candidate := range s {
		if textutil.Fold(candidate) == want {
			return true
		}
	}
	return false
}

// CatalogItem is the canonical product shape every component downstream of the normalizer relies on.
type CatalogItem struct {
	ID                string
	Name              string
	CategoryID        string
	Collection        string
	Slug              string
	Status            string
	Styles            TokenSet
	Tags              TokenSet
	Materials         TokenSet
	Vibes             TokenSet
	PriceRegular      decimal.Decimal
	PriceSale         *decimal.Decimal
	IsNew             bool
	Popularity        float64
	CreatedAt         time.Time
	CreatedAtReliable bool
}

// EffectivePrice returns the sale price when present, otherwise the regular price.
func (i CatalogItem) EffectivePrice() decimal.Decimal {
	if i.PriceSale != nil {
		return *i.PriceSale
	}
	return i.PriceRegular
}

// SortKey selects the ordering applied to a result set.
type SortKey string

const (
	// SortNewest orders by creation time, newest first.
	SortNewest SortKey = "newest"
	// SortPriceAsc orders by effective price, cheapest first.
	SortPriceAsc SortKey = "price_asc"
	// SortPriceDesc orders by effective price, most expensive first.
	SortPriceDesc SortKey = "price_desc"
	// SortPopularity orders by popularity, highest first.
	SortPopularity SortKey = "popularity"
	// SortName orders alphabetically and is the default.
	SortName SortKey = "name"
)

// Valid reports whether the key is recognised. The empty key is valid and means SortName.
func (k SortKey) Valid() bool {
	switch k {
	case "", SortNewest, SortPriceAsc, SortPriceDesc, SortPopularity, SortName:
		return true
	default:
		return false
	}
}

// FilterRequest describes a faceted product query. Tokens inside one dimension are
// alternatives; dimensions combine conjunctively.
type FilterRequest struct {
	Styles    []string
	Vibes     []string
	Materials []string
	PriceMin  *decimal.Decimal
	PriceMax  *decimal.Decimal
	IsNew     *bool
	SortBy    SortKey
	PageSize  int
	Cursor    string
}

// SearchResult is a single text search hit.
type SearchResult struct {
	Item         CatalogItem
	MatchedField string
	Fallback     bool
}

// Category is a normalized category document.
type Category struct {
	ID   string
	Name string
	Slug string
}

// CategoryResult is a single category search hit.
type CategoryResult struct {
	ID   string
	Name string
	Slug string
}

// ResultPage is one page of a sorted filter result.
type ResultPage struct {
	Items       []CatalogItem
	HasMore     bool
	NextCursor  string
	Total       int
	Unavailable bool
}
