package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "github.com/hanko-field/catalog/internal/platform/cache"

// Instrumented counts hits and misses of the wrapped cache.
type Instrumented[V any] struct {
	next   Cache[V]
	name   attribute.KeyValue
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// InstrumentOption customises Instrument.
type InstrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	meter  metric.Meter
	logger *zap.Logger
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) InstrumentOption {
	return func(cfg *instrumentConfig) {
		cfg.meter = m
	}
}

// WithLogger sets the logger used to report instrument registration failures.
func WithLogger(l *zap.Logger) InstrumentOption {
	return func(cfg *instrumentConfig) {
		cfg.logger = l
	}
}

// Instrument wraps next with hit/miss counters labelled by name.
func Instrument[V any](name string, next Cache[V], opts ...InstrumentOption) *Instrumented[V] {
	cfg := instrumentConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	if next == nil {
		next = Noop[V]{}
	}

	hits, err := cfg.meter.Int64Counter(
		"catalog.cache.hits",
		metric.WithDescription("Count of result cache hits"),
	)
	if err != nil {
		cfg.logger.Warn("cache: unable to register hit metric", zap.Error(err))
	}
	misses, err := cfg.meter.Int64Counter(
		"catalog.cache.misses",
		metric.WithDescription("Count of result cache misses"),
	)
	if err != nil {
		cfg.logger.Warn("cache: unable to register miss metric", zap.Error(err))
	}

	return &Instrumented[V]{
		next:   next,
		name:   attribute.String("cache", name),
		hits:   hits,
		misses: misses,
	}
}

// Get delegates and records the outcome.
func (c *Instrumented[V]) Get(ctx context.Context, key string) (V, bool) {
	value, ok := c.next.Get(ctx, key)
	counter := c.misses
	if ok {
		counter = c.hits
	}
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(c.name))
	}
	return value, ok
}

// Set delegates.
func (c *Instrumented[V]) Set(ctx context.Context, key string, value V) {
	c.next.Set(ctx, key, value)
}

// Ping delegates when the wrapped cache supports it.
func (c *Instrumented[V]) Ping(ctx context.Context) error {
	if pinger, ok := c.next.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
