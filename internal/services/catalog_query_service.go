package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hanko-field/catalog/internal/catalog"
	domain "github.com/hanko-field/catalog/internal/domain"
	"github.com/hanko-field/catalog/internal/platform/cache"
	"github.com/hanko-field/catalog/internal/platform/observability"
	"github.com/hanko-field/catalog/internal/platform/pagination"
	"github.com/hanko-field/catalog/internal/platform/requestctx"
	"github.com/hanko-field/catalog/internal/platform/textutil"
	"github.com/hanko-field/catalog/internal/repositories"
)

const (
	instrumentationName       = "github.com/hanko-field/catalog/internal/services"
	defaultPublishedStatus    = "published"
	defaultFetchTimeout       = 5 * time.Second
	defaultSearchMaxResults   = 24
	defaultCategoryMaxResults = 8
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied an invalid query.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogUnavailable indicates the product or category source could not be queried.
	ErrCatalogUnavailable = errors.New("catalog service: unavailable")
)

// CatalogQueryServiceDeps bundles constructor inputs for the catalog query service.
type CatalogQueryServiceDeps struct {
	Products repositories.DocumentSource
	// Categories is optional; without it categories are derived from product category ids.
	Categories repositories.CategorySource

	// Nil caches disable caching for that path.
	MatchCache    cache.Cache[[]domain.CatalogItem]
	SearchCache   cache.Cache[[]domain.SearchResult]
	CategoryCache cache.Cache[[]domain.CategoryResult]

	Normalizer         *catalog.Normalizer
	PublishedStatus    string
	FetchTimeout       time.Duration
	DefaultPageSize    int
	MaxPageSize        int
	SearchMaxResults   int
	CategoryMaxResults int

	Tracer trace.Tracer
	Meter  metric.Meter
	// NewQueryID overrides ULID generation, mainly for tests.
	NewQueryID func() string
}

type catalogQueryService struct {
	products   repositories.DocumentSource
	categories repositories.CategorySource

	matches       cache.Cache[[]domain.CatalogItem]
	searches      cache.Cache[[]domain.SearchResult]
	categoryCache cache.Cache[[]domain.CategoryResult]

	normalizer   *catalog.Normalizer
	status       string
	fetchTimeout time.Duration
	pageSize     int
	maxPageSize  int
	searchMax    int
	categoryMax  int

	flight        singleflight.Group
	tracer        trace.Tracer
	fetchDuration metric.Float64Histogram
	newQueryID    func() string
}

var _ CatalogQueryService = (*catalogQueryService)(nil)

// NewCatalogQueryService constructs the query orchestrator.
func NewCatalogQueryService(deps CatalogQueryServiceDeps) (CatalogQueryService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product source is required")
	}

	svc := &catalogQueryService{
		products:      deps.Products,
		categories:    deps.Categories,
		matches:       deps.MatchCache,
		searches:      deps.SearchCache,
		categoryCache: deps.CategoryCache,
		normalizer:    deps.Normalizer,
		status:        deps.PublishedStatus,
		fetchTimeout:  deps.FetchTimeout,
		pageSize:      deps.DefaultPageSize,
		maxPageSize:   deps.MaxPageSize,
		searchMax:     deps.SearchMaxResults,
		categoryMax:   deps.CategoryMaxResults,
		tracer:        deps.Tracer,
		newQueryID:    deps.NewQueryID,
	}
	if svc.matches == nil {
		svc.matches = cache.Noop[[]domain.CatalogItem]{}
	}
	if svc.searches == nil {
		svc.searches = cache.Noop[[]domain.SearchResult]{}
	}
	if svc.categoryCache == nil {
		svc.categoryCache = cache.Noop[[]domain.CategoryResult]{}
	}
	if svc.normalizer == nil {
		svc.normalizer = catalog.NewNormalizer()
	}
	if svc.status == "" {
		svc.status = defaultPublishedStatus
	}
	if svc.fetchTimeout <= 0 {
		svc.fetchTimeout = defaultFetchTimeout
	}
	if svc.maxPageSize <= 0 {
		svc.maxPageSize = domain.MaxPageSize
	}
	if svc.pageSize <= 0 {
		svc.pageSize = domain.DefaultPageSize
	}
	if svc.pageSize > svc.maxPageSize {
		svc.pageSize = svc.maxPageSize
	}
	if svc.searchMax <= 0 {
		svc.searchMax = defaultSearchMaxResults
	}
	if svc.categoryMax <= 0 {
		svc.categoryMax = defaultCategoryMaxResults
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer(instrumentationName)
	}
	if svc.newQueryID == nil {
		svc.newQueryID = func() string { return ulid.Make().String() }
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	histogram, err := meter.Float64Histogram("catalog.fetch.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of coarse candidate fetches"),
	)
	if err == nil {
		svc.fetchDuration = histogram
	}
	return svc, nil
}

func (s *catalogQueryService) FilterProducts(ctx context.Context, req FilterRequest) (ResultPage, error) {
	pageSize, err := s.validateFilter(req)
	if err != nil {
		return ResultPage{}, err
	}

	ctx, span, logger := s.begin(ctx, "catalog.FilterProducts")
	defer span.End()

	predicate := catalog.CompilePredicate(req)
	key := cache.Key("filter", s.status, predicate.Signature())

	matches, hit := s.matches.Get(ctx, key)
	candidates := -1
	if !hit {
		items, err := s.candidates(ctx)
		if err != nil {
			err = s.failure(ctx, span, logger, err)
			return ResultPage{Unavailable: errors.Is(err, ErrCatalogUnavailable)}, err
		}
		candidates = len(items)
		matches = predicate.Filter(items)
		s.matches.Set(ctx, key, matches)
	}

	sorted := catalog.Sort(matches, req.SortBy)
	page, hasMore, next, err := catalog.Paginate(sorted, pageSize, req.Cursor)
	if err != nil {
		return ResultPage{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	span.SetAttributes(attribute.Bool("catalog.cache_hit", hit), attribute.Int("catalog.matches", len(matches)))
	logger.Debug("catalog filter served",
		zap.Bool("cache", hit),
		zap.Int("candidates", candidates),
		zap.Int("matches", len(matches)),
		zap.Int("page", len(page)),
	)
	return ResultPage{Items: page, HasMore: hasMore, NextCursor: next, Total: len(matches)}, nil
}

func (s *catalogQueryService) SearchProducts(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	limit, err := resolveLimit(maxResults, s.searchMax)
	if err != nil {
		return nil, err
	}
	folded := textutil.Fold(query)
	if utf8.RuneCountInString(folded) < catalog.MinQueryLength {
		return []SearchResult{}, nil
	}

	ctx, span, logger := s.begin(ctx, "catalog.SearchProducts")
	defer span.End()

	key := cache.Key("search", s.status, folded)
	results, hit := s.searches.Get(ctx, key)
	if !hit {
		items, err := s.candidates(ctx)
		if err != nil {
			return nil, s.failure(ctx, span, logger, err)
		}
		results = catalog.Search(folded, items, 0)
		s.searches.Set(ctx, key, results)
	}

	fallback := len(results) > 0 && results[0].Fallback
	span.SetAttributes(attribute.Bool("catalog.cache_hit", hit), attribute.Int("catalog.matches", len(results)))
	logger.Debug("catalog search served",
		zap.String("q", observability.SanitizeQuery(folded)),
		zap.Bool("cache", hit),
		zap.Bool("fallback", fallback),
		zap.Int("matches", len(results)),
	)
	return capped(results, limit), nil
}

func (s *catalogQueryService) SearchCategories(ctx context.Context, query string, maxResults int) ([]CategoryResult, error) {
	limit, err := resolveLimit(maxResults, s.categoryMax)
	if err != nil {
		return nil, err
	}
	folded := textutil.Fold(query)
	if utf8.RuneCountInString(folded) < catalog.MinQueryLength {
		return []CategoryResult{}, nil
	}

	ctx, span, logger := s.begin(ctx, "catalog.SearchCategories")
	defer span.End()

	key := cache.Key("categories", folded)
	results, hit := s.categoryCache.Get(ctx, key)
	if !hit {
		categories, err := s.loadCategories(ctx)
		if err != nil {
			return nil, s.failure(ctx, span, logger, err)
		}
		results = catalog.SearchCategories(folded, categories, 0)
		s.categoryCache.Set(ctx, key, results)
	}

	logger.Debug("catalog category search served",
		zap.String("q", observability.SanitizeQuery(folded)),
		zap.Bool("cache", hit),
		zap.Int("matches", len(results)),
	)
	return capped(results, limit), nil
}

func (s *catalogQueryService) validateFilter(req FilterRequest) (int, error) {
	switch {
	case req.PageSize < 0:
		return 0, fmt.Errorf("%w: page size must not be negative", ErrCatalogInvalidInput)
	case req.PriceMin != nil && req.PriceMin.IsNegative():
		return 0, fmt.Errorf("%w: priceMin must not be negative", ErrCatalogInvalidInput)
	case req.PriceMax != nil && req.PriceMax.IsNegative():
		return 0, fmt.Errorf("%w: priceMax must not be negative", ErrCatalogInvalidInput)
	case req.PriceMin != nil && req.PriceMax != nil && req.PriceMin.GreaterThan(*req.PriceMax):
		return 0, fmt.Errorf("%w: priceMin exceeds priceMax", ErrCatalogInvalidInput)
	case !req.SortBy.Valid():
		return 0, fmt.Errorf("%w: unknown sort %q", ErrCatalogInvalidInput, req.SortBy)
	}
	if req.Cursor != "" {
		if _, err := pagination.DecodeOffset(req.Cursor); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
	}

	size := req.PageSize
	if size == 0 {
		size = s.pageSize
	}
	if size > s.maxPageSize {
		size = s.maxPageSize
	}
	return size, nil
}

func resolveLimit(requested, fallback int) (int, error) {
	if requested < 0 {
		return 0, fmt.Errorf("%w: maxResults must not be negative", ErrCatalogInvalidInput)
	}
	if requested == 0 {
		return fallback, nil
	}
	return requested, nil
}

// capped copies at most limit results so callers never alias a cached slice.
func capped[T any](results []T, limit int) []T {
	if len(results) > limit {
		results = results[:limit]
	}
	return append(make([]T, 0, len(results)), results...)
}

func (s *catalogQueryService) begin(ctx context.Context, name string) (context.Context, trace.Span, *zap.Logger) {
	ctx = requestctx.WithQueryID(ctx, s.newQueryID())
	ctx, span := s.tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("catalog.query_id", requestctx.QueryID(ctx)))
	return ctx, span, observability.FromContext(ctx).With(zap.String("op", name))
}

// failure classifies a failed fetch. A caller that gave up gets its own
// context error back; anything else is a source outage.
func (s *catalogQueryService) failure(ctx context.Context, span trace.Span, logger *zap.Logger, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		span.SetAttributes(attribute.Bool("catalog.abandoned", true))
		logger.Debug("catalog query abandoned by caller", zap.Error(ctxErr))
		return fmt.Errorf("catalog service: query abandoned: %w", ctxErr)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "catalog unavailable")
	fields := []zap.Field{zap.Error(err)}
	var classified interface{ Kind() string }
	if errors.As(err, &classified) {
		fields = append(fields, zap.String("kind", classified.Kind()))
	}
	logger.Warn("catalog source unavailable", fields...)
	return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
}

// candidates performs the single coarse fetch. Concurrent callers share one
// in-flight fetch; each caller can still abandon it through its own context.
func (s *catalogQueryService) candidates(ctx context.Context) ([]domain.CatalogItem, error) {
	value, err := s.shared(ctx, "products|"+s.status, func(fetchCtx context.Context) (any, error) {
		raw, err := s.products.FetchCandidates(fetchCtx, s.status)
		if err != nil {
			return nil, err
		}
		return s.normalizer.NormalizeAll(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]domain.CatalogItem), nil
}

func (s *catalogQueryService) loadCategories(ctx context.Context) ([]domain.Category, error) {
	if s.categories == nil {
		items, err := s.candidates(ctx)
		if err != nil {
			return nil, err
		}
		return categoriesFromItems(items), nil
	}

	value, err := s.shared(ctx, "categories", func(fetchCtx context.Context) (any, error) {
		raw, err := s.categories.ListCategories(fetchCtx)
		if err != nil {
			return nil, err
		}
		categories := make([]domain.Category, 0, len(raw))
		for _, doc := range raw {
			if category := catalog.NormalizeCategory(doc); category.ID != "" {
				categories = append(categories, category)
			}
		}
		return categories, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]domain.Category), nil
}

func (s *catalogQueryService) shared(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	ch := s.flight.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		start := time.Now()
		value, err := load(fetchCtx)
		if s.fetchDuration != nil {
			s.fetchDuration.Record(fetchCtx, float64(time.Since(start))/float64(time.Millisecond),
				metric.WithAttributes(attribute.String("source", key), attribute.Bool("error", err != nil)))
		}
		return value, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-ch:
		return result.Val, result.Err
	}
}

func categoriesFromItems(items []domain.CatalogItem) []domain.Category {
	seen := make(map[string]struct{})
	var categories []domain.Category
	for _, item := range items {
		if item.CategoryID == domain.UncategorizedID {
			continue
		}
		if _, ok := seen[item.CategoryID]; ok {
			continue
		}
		seen[item.CategoryID] = struct{}{}
		categories = append(categories, domain.Category{ID: item.CategoryID, Name: item.CategoryID, Slug: item.CategoryID})
	}
	return categories
}
