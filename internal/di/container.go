package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/hanko-field/catalog/internal/catalog"
	domain "github.com/hanko-field/catalog/internal/domain"
	"github.com/hanko-field/catalog/internal/platform/cache"
	"github.com/hanko-field/catalog/internal/platform/config"
	pfirestore "github.com/hanko-field/catalog/internal/platform/firestore"
	"github.com/hanko-field/catalog/internal/platform/observability"
	"github.com/hanko-field/catalog/internal/repositories"
	firestoreRepo "github.com/hanko-field/catalog/internal/repositories/firestore"
	"github.com/hanko-field/catalog/internal/repositories/fixture"
	mongoRepo "github.com/hanko-field/catalog/internal/repositories/mongo"
	"github.com/hanko-field/catalog/internal/services"
)

const (
	sourceCheckTimeout = 1500 * time.Millisecond
	cacheCheckTimeout  = time.Second
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog services.CatalogQueryService
	System  services.SystemService
}

// Container wires document sources, caches and services for runtime use.
type Container struct {
	Config   config.Config
	Services Services

	logger  *zap.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	meter      metric.Meter
	build      services.BuildInfo
	products   repositories.DocumentSource
	categories repositories.CategorySource
}

// WithLogger sets the base logger used by the container and its components.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter overrides the meter used for cache and fetch instruments.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithBuildInfo sets build metadata reported by readiness checks.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) {
		o.build = build
	}
}

// WithSources bypasses Catalog.Source and uses the given sources. categories may be nil.
func WithSources(products repositories.DocumentSource, categories repositories.CategorySource) Option {
	return func(o *options) {
		o.products = products
		o.categories = categories
	}
}

type sources struct {
	products   repositories.DocumentSource
	categories repositories.CategorySource
}

type caches struct {
	matches    cache.Cache[[]domain.CatalogItem]
	searches   cache.Cache[[]domain.SearchResult]
	categories cache.Cache[[]domain.CategoryResult]
	pinger     cache.Pinger
}

// NewContainer constructs the runtime dependencies. On failure every resource
// opened so far is released.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	c := &Container{Config: cfg, logger: o.logger}

	src, err := c.openSources(ctx, o)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	cs, err := c.openCaches(o)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	svc, err := buildServices(cfg, o, src, cs)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close releases clients in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		closer := c.closers[i]
		if err := closer.close(ctx); err != nil {
			c.logger.Warn("close failed", zap.String("component", closer.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", closer.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) onClose(name string, fn func(context.Context) error) {
	c.closers = append(c.closers, namedCloser{name: name, close: fn})
}

func (c *Container) openSources(ctx context.Context, o options) (sources, error) {
	if o.products != nil {
		return sources{products: o.products, categories: o.categories}, nil
	}

	cat := c.Config.Catalog
	switch cat.Source {
	case config.SourceFixture:
		src, err := fixture.Open(cat.FixtureFile, cat.StatusField)
		if err != nil {
			return sources{}, fmt.Errorf("open fixture source: %w", err)
		}
		return sources{products: src, categories: src}, nil

	case config.SourceMongo:
		store, err := mongoRepo.Open(ctx, mongoRepo.Config{
			URI:                  c.Config.Mongo.URI,
			Database:             c.Config.Mongo.Database,
			ProductsCollection:   cat.ProductsCollection,
			CategoriesCollection: cat.CategoryCollection,
			StatusField:          cat.StatusField,
		})
		if err != nil {
			return sources{}, fmt.Errorf("open mongo source: %w", err)
		}
		c.onClose("mongo", store.Close)
		return sources{products: store, categories: store}, nil

	case config.SourceFirestore:
		provider := pfirestore.NewProvider(c.Config.Firestore)
		c.onClose("firestore", provider.Close)
		products, err := firestoreRepo.NewProductSource(provider,
			firestoreRepo.WithProductsCollection(cat.ProductsCollection),
			firestoreRepo.WithStatusField(cat.StatusField),
		)
		if err != nil {
			return sources{}, fmt.Errorf("build firestore product source: %w", err)
		}
		categories, err := firestoreRepo.NewCategorySource(provider, cat.CategoryCollection)
		if err != nil {
			return sources{}, fmt.Errorf("build firestore category source: %w", err)
		}
		return sources{products: products, categories: categories}, nil

	default:
		return sources{}, fmt.Errorf("unknown catalog source %q", cat.Source)
	}
}

func (c *Container) openCaches(o options) (caches, error) {
	cfg := c.Config.Cache
	logger := o.logger.Named("cache")

	var cs caches
	switch cfg.Backend {
	case config.CacheNone:
		return cs, nil

	case config.CacheMemory:
		memory := cache.NewMemory[[]domain.CatalogItem](cfg.Capacity, cfg.TTL)
		cs.matches = memory
		cs.searches = cache.NewMemory[[]domain.SearchResult](cfg.Capacity, cfg.TTL)
		cs.categories = cache.NewMemory[[]domain.CategoryResult](cfg.Capacity, cfg.TTL)
		cs.pinger = memory

	case config.CacheRedis:
		rcfg := cache.RedisConfig{
			URL:              cfg.RedisURL,
			Password:         cfg.RedisPassword,
			Prefix:           cfg.Prefix,
			TTL:              cfg.TTL,
			OperationTimeout: cfg.OperationTimeout,
		}
		client, err := cache.NewRedisClient(rcfg)
		if err != nil {
			return caches{}, err
		}
		redis.SetLogger(observability.NewRedisLogger(logger))
		c.onClose("redis", func(context.Context) error { return client.Close() })

		matches, err := cache.NewRedis[[]domain.CatalogItem](client, "filter", rcfg, logger)
		if err != nil {
			return caches{}, err
		}
		searches, err := cache.NewRedis[[]domain.SearchResult](client, "search", rcfg, logger)
		if err != nil {
			return caches{}, err
		}
		categories, err := cache.NewRedis[[]domain.CategoryResult](client, "categories", rcfg, logger)
		if err != nil {
			return caches{}, err
		}
		cs.matches, cs.searches, cs.categories = matches, searches, categories
		cs.pinger = matches

	default:
		return caches{}, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	instrument := []cache.InstrumentOption{cache.WithLogger(logger)}
	if o.meter != nil {
		instrument = append(instrument, cache.WithMeter(o.meter))
	}
	cs.matches = cache.Instrument("filter", cs.matches, instrument...)
	cs.searches = cache.Instrument("search", cs.searches, instrument...)
	cs.categories = cache.Instrument("categories", cs.categories, instrument...)
	return cs, nil
}

func buildServices(cfg config.Config, o options, src sources, cs caches) (Services, error) {
	catalogSvc, err := services.NewCatalogQueryService(services.CatalogQueryServiceDeps{
		Products:           src.products,
		Categories:         src.categories,
		MatchCache:         cs.matches,
		SearchCache:        cs.searches,
		CategoryCache:      cs.categories,
		Normalizer:         catalog.NewNormalizer(),
		PublishedStatus:    cfg.Catalog.PublishedStatus,
		FetchTimeout:       cfg.Catalog.FetchTimeout,
		DefaultPageSize:    cfg.Catalog.DefaultPageSize,
		SearchMaxResults:   cfg.Catalog.SearchMaxResults,
		CategoryMaxResults: cfg.Catalog.CategoryMaxResults,
		Meter:              o.meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog query service: %w", err)
	}

	checks := []repositories.DependencyCheck{{
		Name:    "products",
		Timeout: sourceCheckTimeout,
		Check:   pingOf(src.products),
	}}
	if cs.pinger != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "cache",
			Timeout:  cacheCheckTimeout,
			Optional: true,
			Check:    cs.pinger.Ping,
		})
	}
	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}

	build := o.build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            time.Now,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return Services{Catalog: catalogSvc, System: systemSvc}, nil
}

// pingOf adapts a source to a readiness probe. Sources that cannot ping are
// reported healthy.
func pingOf(source repositories.DocumentSource) func(context.Context) error {
	if pinger, ok := source.(repositories.Pinger); ok {
		return pinger.Ping
	}
	return func(context.Context) error { return nil }
}
