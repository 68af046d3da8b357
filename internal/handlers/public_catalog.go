package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/catalog/internal/domain"
	"github.com/hanko-field/catalog/internal/platform/httpx"
	"github.com/hanko-field/catalog/internal/platform/pagination"
	"github.com/hanko-field/catalog/internal/platform/textutil"
	"github.com/hanko-field/catalog/internal/services"
)

const (
	catalogCacheControl = "public, max-age=60"
	maxQueryLength      = 200
	// nginx convention for a client that disconnected before the response.
	statusClientClosedRequest = 499
)

var queryPolicy = bluemonday.StrictPolicy()

// PublicCatalogHandlers exposes the storefront listing and search endpoints.
type PublicCatalogHandlers struct {
	catalog         services.CatalogQueryService
	defaultPageSize int
	searchLimiter   rateLimiter
}

// PublicCatalogOption customises construction of PublicCatalogHandlers.
type PublicCatalogOption func(*PublicCatalogHandlers)

// WithCatalogQueryService injects the query service.
func WithCatalogQueryService(svc services.CatalogQueryService) PublicCatalogOption {
	return func(h *PublicCatalogHandlers) {
		h.catalog = svc
	}
}

// WithDefaultPageSize sets the page size used when the request omits pageSize.
func WithDefaultPageSize(size int) PublicCatalogOption {
	return func(h *PublicCatalogHandlers) {
		if size > 0 {
			h.defaultPageSize = size
		}
	}
}

// WithSearchRateLimit throttles the search endpoints per client address.
// perMinute <= 0 disables throttling.
func WithSearchRateLimit(perMinute, burst int) PublicCatalogOption {
	return func(h *PublicCatalogHandlers) {
		h.searchLimiter = newClientRateLimiter(perMinute, burst, nil)
	}
}

func withSearchLimiter(limiter rateLimiter) PublicCatalogOption {
	return func(h *PublicCatalogHandlers) {
		h.searchLimiter = limiter
	}
}

// NewPublicCatalogHandlers constructs the public catalog handlers.
func NewPublicCatalogHandlers(opts ...PublicCatalogOption) *PublicCatalogHandlers {
	h := &PublicCatalogHandlers{defaultPageSize: domain.DefaultPageSize}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the catalog endpoints against the provided router.
func (h *PublicCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Group(func(search chi.Router) {
		search.Use(h.rateLimit)
		search.Get("/search/products", h.searchProducts)
		search.Get("/search/categories", h.searchCategories)
	})
}

func (h *PublicCatalogHandlers) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.searchLimiter != nil {
			if ok, retryAfter := h.searchLimiter.Allow(clientKey(r)); !ok {
				httpx.WriteError(r.Context(), w, httpx.TooManyRequests(retryAfter))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type productPayload struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	CategoryID     string   `json:"categoryId"`
	Collection     string   `json:"collection,omitempty"`
	Slug           string   `json:"slug,omitempty"`
	Styles         []string `json:"styles"`
	Tags           []string `json:"tags"`
	Materials      []string `json:"materials"`
	Vibes          []string `json:"vibes"`
	PriceRegular   string   `json:"priceRegular"`
	PriceSale      *string  `json:"priceSale,omitempty"`
	EffectivePrice string   `json:"effectivePrice"`
	IsNew          bool     `json:"isNew"`
	Popularity     float64  `json:"popularity"`
	CreatedAt      string   `json:"createdAt,omitempty"`
}

type productListResponse struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
	HasMore       bool             `json:"hasMore"`
	Total         int              `json:"total"`
}

type searchHitPayload struct {
	Product      productPayload `json:"product"`
	MatchedField string         `json:"matchedField"`
	Fallback     bool           `json:"fallback,omitempty"`
}

type productSearchResponse struct {
	Query   string             `json:"query"`
	Results []searchHitPayload `json:"results"`
}

type categoryPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

type categorySearchResponse struct {
	Query      string            `json:"query"`
	Categories []categoryPayload `json:"categories"`
}

func (h *PublicCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.Unavailable("catalog service is unavailable"))
		return
	}

	req, err := parseFilterRequest(r.URL.Query(), h.defaultPageSize)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest("invalid_request", err.Error()))
		return
	}

	page, err := h.catalog.FilterProducts(r.Context(), req)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	products := make([]productPayload, 0, len(page.Items))
	for _, item := range page.Items {
		products = append(products, buildProductPayload(item))
	}
	w.Header().Set("Cache-Control", catalogCacheControl)
	httpx.WriteJSON(w, http.StatusOK, productListResponse{
		Products:      products,
		NextPageToken: page.NextCursor,
		HasMore:       page.HasMore,
		Total:         page.Total,
	})
}

func (h *PublicCatalogHandlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.Unavailable("catalog service is unavailable"))
		return
	}

	query, limit, err := parseSearchParams(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest("invalid_request", err.Error()))
		return
	}

	results, err := h.catalog.SearchProducts(r.Context(), query, limit)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	hits := make([]searchHitPayload, 0, len(results))
	for _, result := range results {
		hits = append(hits, searchHitPayload{
			Product:      buildProductPayload(result.Item),
			MatchedField: result.MatchedField,
			Fallback:     result.Fallback,
		})
	}
	w.Header().Set("Cache-Control", catalogCacheControl)
	httpx.WriteJSON(w, http.StatusOK, productSearchResponse{Query: query, Results: hits})
}

func (h *PublicCatalogHandlers) searchCategories(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.Unavailable("catalog service is unavailable"))
		return
	}

	query, limit, err := parseSearchParams(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest("invalid_request", err.Error()))
		return
	}

	results, err := h.catalog.SearchCategories(r.Context(), query, limit)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	categories := make([]categoryPayload, 0, len(results))
	for _, result := range results {
		categories = append(categories, categoryPayload{ID: result.ID, Name: result.Name, Slug: result.Slug})
	}
	w.Header().Set("Cache-Control", catalogCacheControl)
	httpx.WriteJSON(w, http.StatusOK, categorySearchResponse{Query: query, Categories: categories})
}

// parseFilterRequest reads facet parameters. Facets may repeat or carry comma
// separated values: ?style=boho&style=minimal and ?style=boho,minimal are equal.
func parseFilterRequest(values url.Values, defaultPageSize int) (services.FilterRequest, error) {
	params, err := pagination.Parse(values, pagination.Options{
		DefaultPageSize: defaultPageSize,
		MaxPageSize:     domain.MaxPageSize,
	})
	if err != nil {
		return services.FilterRequest{}, err
	}

	req := services.FilterRequest{
		Styles:    textutil.SplitList(values["style"]...),
		Vibes:     textutil.SplitList(values["vibe"]...),
		Materials: textutil.SplitList(values["material"]...),
		SortBy:    domain.SortKey(strings.ToLower(strings.TrimSpace(values.Get("sort")))),
		PageSize:  params.PageSize,
		Cursor:    params.PageToken,
	}

	if req.PriceMin, err = parsePrice(values.Get("priceMin"), "priceMin"); err != nil {
		return services.FilterRequest{}, err
	}
	if req.PriceMax, err = parsePrice(values.Get("priceMax"), "priceMax"); err != nil {
		return services.FilterRequest{}, err
	}

	if raw := strings.TrimSpace(values.Get("isNew")); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			return services.FilterRequest{}, errors.New("isNew must be a boolean")
		}
		req.IsNew = &flag
	}
	return req, nil
}

func parsePrice(raw, name string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a decimal number", name)
	}
	return &value, nil
}

// parseSearchParams strips markup from q. A missing limit means the service default.
func parseSearchParams(values url.Values) (string, int, error) {
	query := sanitizeQuery(values.Get("q"))

	limit := 0
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return "", 0, errors.New("limit must be an integer")
		}
		limit = parsed
	}
	return query, limit, nil
}

func sanitizeQuery(raw string) string {
	cleaned := html.UnescapeString(queryPolicy.Sanitize(raw))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if runes := []rune(cleaned); len(runes) > maxQueryLength {
		cleaned = string(runes[:maxQueryLength])
	}
	return cleaned
}

func buildProductPayload(item domain.CatalogItem) productPayload {
	payload := productPayload{
		ID:             item.ID,
		Name:           item.Name,
		CategoryID:     item.CategoryID,
		Collection:     item.Collection,
		Slug:           item.Slug,
		Styles:         tokens(item.Styles),
		Tags:           tokens(item.Tags),
		Materials:      tokens(item.Materials),
		Vibes:          tokens(item.Vibes),
		PriceRegular:   item.PriceRegular.StringFixed(2),
		EffectivePrice: item.EffectivePrice().StringFixed(2),
		IsNew:          item.IsNew,
		Popularity:     item.Popularity,
	}
	if item.PriceSale != nil {
		sale := item.PriceSale.StringFixed(2)
		payload.PriceSale = &sale
	}
	if item.CreatedAtReliable {
		payload.CreatedAt = item.CreatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func tokens(set domain.TokenSet) []string {
	if len(set) == 0 {
		return []string{}
	}
	return append([]string(nil), set...)
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		httpx.WriteError(ctx, w, httpx.NewError("request_cancelled", "request cancelled", statusClientClosedRequest))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.Unavailable("catalog is temporarily unavailable"))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
