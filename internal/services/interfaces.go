package services

import (
	"context"

	domain "github.com/hanko-field/catalog/internal/domain"
)

// Aliases keep handler signatures short.
type (
	FilterRequest      = domain.FilterRequest
	ResultPage         = domain.ResultPage
	SearchResult       = domain.SearchResult
	CategoryResult     = domain.CategoryResult
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogQueryService answers storefront product listing and search queries.
type CatalogQueryService interface {
	// FilterProducts evaluates the request against the published catalog and
	// returns one page of the sorted match set. When the product source fails
	// the page is empty, Unavailable is set and the error wraps ErrCatalogUnavailable.
	FilterProducts(ctx context.Context, req FilterRequest) (ResultPage, error)
	// SearchProducts returns up to maxResults products matching the free-text
	// query in catalog order. maxResults of zero selects the configured default.
	SearchProducts(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
	// SearchCategories matches the query against category names, ids and slugs.
	SearchCategories(ctx context.Context, query string, maxResults int) ([]CategoryResult, error)
}

// SystemService exposes health and build metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
