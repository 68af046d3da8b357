package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultSource              = SourceFirestore
	defaultProductsCollection  = "products"
	defaultCategoryCollection  = "categories"
	defaultStatusField         = "status"
	defaultPublishedStatus     = "published"
	defaultFetchTimeout        = 8 * time.Second
	defaultPageSize            = 12
	defaultSearchMaxResults    = 20
	defaultCategoryMaxResults  = 8
	defaultCacheBackend        = CacheMemory
	defaultCacheCapacity       = 512
	defaultCacheTTL            = 5 * time.Minute
	defaultCachePrefix         = "catalog"
	defaultCacheOpTimeout      = 250 * time.Millisecond
	defaultMongoDatabase       = "catalog"
	defaultRateLimitSearch     = 120
	defaultRateLimitBurst      = 20
	defaultSecurityEnvironment = "local"
)

// Document source kinds.
const (
	SourceFirestore = "firestore"
	SourceMongo     = "mongo"
	SourceFixture   = "fixture"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	Mongo      MongoConfig
	Catalog    CatalogConfig
	Cache      CacheConfig
	RateLimits RateLimitConfig
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// MongoConfig stores the alternative document store connection.
type MongoConfig struct {
	URI      string
	Database string
}

// CatalogConfig controls where candidates come from and how queries are bounded.
type CatalogConfig struct {
	Source             string
	FixtureFile        string
	ProductsCollection string
	CategoryCollection string
	StatusField        string
	PublishedStatus    string
	FetchTimeout       time.Duration
	DefaultPageSize    int
	SearchMaxResults   int
	CategoryMaxResults int
}

// CacheConfig selects and sizes the result cache.
type CacheConfig struct {
	Backend          string
	Capacity         int
	TTL              time.Duration
	RedisURL         string
	RedisPassword    string
	Prefix           string
	OperationTimeout time.Duration
}

// RateLimitConfig controls request throttling on the search endpoints.
type RateLimitConfig struct {
	SearchPerMinute int
	Burst           int
}

// SecurityConfig groups deployment environment settings.
type SecurityConfig struct {
	Environment string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers can use the result to initialise
// dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		if source == nil {
			return
		}
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		system := make(map[string]string)
		for _, entry := range os.Environ() {
			if entry == "" {
				continue
			}
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			system[key] = parts[1]
		}
		merge(system)
	}

	merge(options.envMap)

	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers should match the config field names recorded by the loader
// (e.g. "Cache.RedisPassword").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "CATALOG_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "CATALOG_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "CATALOG_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "CATALOG_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "CATALOG_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "CATALOG_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "CATALOG_FIRESTORE_EMULATOR_HOST", ""),
		},
		Mongo: MongoConfig{
			URI:      stringWithDefault(lookup, "CATALOG_MONGO_URI", ""),
			Database: stringWithDefault(lookup, "CATALOG_MONGO_DATABASE", defaultMongoDatabase),
		},
		Catalog: CatalogConfig{
			Source:             strings.ToLower(stringWithDefault(lookup, "CATALOG_SOURCE", defaultSource)),
			FixtureFile:        stringWithDefault(lookup, "CATALOG_FIXTURE_FILE", ""),
			ProductsCollection: stringWithDefault(lookup, "CATALOG_PRODUCTS_COLLECTION", defaultProductsCollection),
			CategoryCollection: stringWithDefault(lookup, "CATALOG_CATEGORIES_COLLECTION", defaultCategoryCollection),
			StatusField:        stringWithDefault(lookup, "CATALOG_STATUS_FIELD", defaultStatusField),
			PublishedStatus:    stringWithDefault(lookup, "CATALOG_PUBLISHED_STATUS", defaultPublishedStatus),
			FetchTimeout:       durationWithDefault(lookup, "CATALOG_FETCH_TIMEOUT", defaultFetchTimeout),
			DefaultPageSize:    intWithDefault(lookup, "CATALOG_DEFAULT_PAGE_SIZE", defaultPageSize),
			SearchMaxResults:   intWithDefault(lookup, "CATALOG_SEARCH_MAX_RESULTS", defaultSearchMaxResults),
			CategoryMaxResults: intWithDefault(lookup, "CATALOG_CATEGORY_MAX_RESULTS", defaultCategoryMaxResults),
		},
		Cache: CacheConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "CATALOG_CACHE_BACKEND", defaultCacheBackend)),
			Capacity:         intWithDefault(lookup, "CATALOG_CACHE_CAPACITY", defaultCacheCapacity),
			TTL:              durationWithDefault(lookup, "CATALOG_CACHE_TTL", defaultCacheTTL),
			RedisURL:         stringWithDefault(lookup, "CATALOG_CACHE_REDIS_URL", ""),
			RedisPassword:    stringWithDefault(lookup, "CATALOG_CACHE_REDIS_PASSWORD", ""),
			Prefix:           stringWithDefault(lookup, "CATALOG_CACHE_PREFIX", defaultCachePrefix),
			OperationTimeout: durationWithDefault(lookup, "CATALOG_CACHE_OP_TIMEOUT", defaultCacheOpTimeout),
		},
		RateLimits: RateLimitConfig{
			SearchPerMinute: intWithDefault(lookup, "CATALOG_RATELIMIT_SEARCH_PER_MIN", defaultRateLimitSearch),
			Burst:           intWithDefault(lookup, "CATALOG_RATELIMIT_BURST", defaultRateLimitBurst),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "CATALOG_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	// Firestore project falls back to the ambient Google Cloud project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Mongo.URI", &cfg.Mongo.URI},
		{"Cache.RedisURL", &cfg.Cache.RedisURL},
		{"Cache.RedisPassword", &cfg.Cache.RedisPassword},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		normalized := normalizeSecretReference(value)
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}

	switch cfg.Catalog.Source {
	case SourceFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case SourceMongo:
		if cfg.Mongo.URI == "" {
			missing = append(missing, "Mongo.URI")
		}
		if cfg.Mongo.Database == "" {
			missing = append(missing, "Mongo.Database")
		}
	case SourceFixture:
		if cfg.Catalog.FixtureFile == "" {
			missing = append(missing, "Catalog.FixtureFile")
		}
	default:
		missing = append(missing, "Catalog.Source")
	}

	if strings.TrimSpace(cfg.Catalog.ProductsCollection) == "" {
		missing = append(missing, "Catalog.ProductsCollection")
	}
	if strings.TrimSpace(cfg.Catalog.CategoryCollection) == "" {
		missing = append(missing, "Catalog.CategoryCollection")
	}
	if strings.TrimSpace(cfg.Catalog.StatusField) == "" {
		missing = append(missing, "Catalog.StatusField")
	}
	if cfg.Catalog.FetchTimeout <= 0 {
		missing = append(missing, "Catalog.FetchTimeout")
	}
	if cfg.Catalog.DefaultPageSize <= 0 {
		missing = append(missing, "Catalog.DefaultPageSize")
	}
	if cfg.Catalog.SearchMaxResults <= 0 {
		missing = append(missing, "Catalog.SearchMaxResults")
	}
	if cfg.Catalog.CategoryMaxResults <= 0 {
		missing = append(missing, "Catalog.CategoryMaxResults")
	}

	switch cfg.Cache.Backend {
	case CacheMemory:
		if cfg.Cache.Capacity <= 0 {
			missing = append(missing, "Cache.Capacity")
		}
	case CacheRedis:
		if cfg.Cache.RedisURL == "" {
			missing = append(missing, "Cache.RedisURL")
		}
	case CacheNone:
	default:
		missing = append(missing, "Cache.Backend")
	}
	if cfg.Cache.Backend != CacheNone && cfg.Cache.TTL <= 0 {
		missing = append(missing, "Cache.TTL")
	}

	if cfg.RateLimits.SearchPerMinute < 0 {
		missing = append(missing, "RateLimits.SearchPerMinute")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
