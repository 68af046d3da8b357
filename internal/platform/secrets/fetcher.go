package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	metricNamespace     = "github.com/hanko-field/catalog/internal/platform/secrets"
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	defaultCacheSize    = 64
	latestVersion       = "latest"
)

// ErrNotFound is returned when neither Secret Manager nor the fallback file hold the reference.
var ErrNotFound = errors.New("secrets: secret not found")

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Secret Manager. Outside
// production a local KEY=VALUE file answers when the remote is unreachable.
type Fetcher struct {
	client     accessor
	ownsClient bool
	logger     *zap.Logger
	project    string
	production bool

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	cache *expirable.LRU[string, string]

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type settings struct {
	logger       *zap.Logger
	env          string
	project      string
	fallbackPath string
	meter        metric.Meter
	client       accessor
	clientOpts   []option.ClientOption
	ttl          time.Duration
}

// Option customises a Fetcher.
type Option func(*settings)

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithEnvironment overrides CATALOG_ENVIRONMENT. The fallback file is ignored in "prod" and "production".
func WithEnvironment(env string) Option {
	return func(s *settings) { s.env = env }
}

// WithDefaultProject sets the project used when a reference carries no ?project= override.
func WithDefaultProject(projectID string) Option {
	return func(s *settings) { s.project = projectID }
}

// WithFallbackFile changes the local fallback path. An empty path disables it.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallbackPath = path }
}

// WithMeter injects the meter used for latency and cache hit metrics.
func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

// WithCacheTTL sets how long resolved values are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) { s.ttl = ttl }
}

// WithSecretManagerClient injects a pre-built client; the Fetcher will not close it.
func WithSecretManagerClient(client accessor) Option {
	return func(s *settings) { s.client = client }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not fatal:
// the fetcher then serves the fallback file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{
		env:          os.Getenv("CATALOG_ENVIRONMENT"),
		project:      os.Getenv("CATALOG_FIRESTORE_PROJECT_ID"),
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
	}
	if s.project == "" {
		s.project = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.meter == nil {
		s.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	if s.ttl <= 0 {
		s.ttl = defaultCacheTTL
	}

	env := strings.ToLower(strings.TrimSpace(s.env))
	f := &Fetcher{
		logger:       s.logger,
		project:      strings.TrimSpace(s.project),
		production:   env == "prod" || env == "production",
		fallbackPath: strings.TrimSpace(s.fallbackPath),
		cache:        expirable.NewLRU[string, string](defaultCacheSize, nil, s.ttl),
	}

	var err error
	if f.latency, err = s.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret resolution latency by source"),
	); err != nil {
		s.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	if f.cacheHits, err = s.meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from memory"),
	); err != nil {
		s.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
	}

	switch {
	case s.client != nil:
		f.client = s.client
	default:
		client, err := secretManagerClientFactory(ctx, s.clientOpts...)
		if err != nil {
			s.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
			break
		}
		f.client = client
		f.ownsClient = true
	}
	return f, nil
}

// Close releases the Secret Manager client when the Fetcher created it.
func (f *Fetcher) Close() error {
	f.cache.Purge()
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind ref, e.g. "secret://redis-password?version=3".
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	r, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	if value, ok := f.cache.Get(r.key()); ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", mask(r.canonical))))
		}
		f.observe(ctx, start, "cache")
		return value, nil
	}

	project := r.project
	if project == "" {
		project = f.project
	}

	if f.client != nil && project != "" {
		value, err := f.access(ctx, project, r)
		switch {
		case err == nil:
			f.cache.Add(r.key(), value)
			f.observe(ctx, start, "remote")
			return value, nil
		case !fallbackEligible(err) || f.production:
			f.observe(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", r.canonical, err)
		}
		f.logger.Debug("secrets: remote access failed, trying fallback file",
			zap.String("secret", mask(r.canonical)), zap.Error(err))
	}

	if f.production {
		f.observe(ctx, start, "error")
		return "", fmt.Errorf("%w: %s", ErrNotFound, r.canonical)
	}

	value, ok := f.lookupFallback(r)
	if !ok {
		f.observe(ctx, start, "error")
		return "", fmt.Errorf("%w: %s", ErrNotFound, r.canonical)
	}
	f.cache.Add(r.key(), value)
	f.observe(ctx, start, "fallback")
	return value, nil
}

func (f *Fetcher) access(ctx context.Context, project string, r reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.name, r.version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) lookupFallback(r reference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Warn("secrets: fallback file unreadable", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallback[r.key()]; ok {
		return value, true
	}
	value, ok := f.fallback[r.canonical]
	return value, ok
}

// loadFallback reads lines of the form "secret://name[?version=N]=value".
func (f *Fetcher) loadFallback() {
	f.fallback = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	file, err := os.Open(f.fallbackPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		f.fallbackErr = fmt.Errorf("secrets: open %s: %w", f.fallbackPath, err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitFallbackLine(line)
		if !ok {
			continue
		}
		r, err := parseReference(strings.TrimSpace(key))
		if err != nil {
			continue
		}
		value = strings.TrimSpace(value)
		if r.pinned {
			f.fallback[r.key()] = value
			continue
		}
		f.fallback[r.canonical] = value
	}
	if err := scanner.Err(); err != nil {
		f.fallbackErr = fmt.Errorf("secrets: read %s: %w", f.fallbackPath, err)
	}
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

type reference struct {
	canonical string
	name      string
	version   string
	pinned    bool
	project   string
}

func (r reference) key() string {
	return r.canonical + "#" + r.version
}

func parseReference(ref string) (reference, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		trimmed = "secret://" + rest
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	query := u.Query()
	r := reference{
		canonical: "secret://" + name,
		name:      name,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}
	if r.version == "" {
		r.version = latestVersion
	} else {
		r.pinned = true
	}
	return r, nil
}

// splitFallbackLine separates the reference from its value. A "?version=N"
// query consumes the first "=" of the line.
func splitFallbackLine(line string) (string, string, bool) {
	offset := 0
	if q := strings.Index(line, "?"); q >= 0 {
		eq := strings.Index(line[q:], "=")
		if eq < 0 {
			return "", "", false
		}
		offset = q + eq + 1
	}
	eq := strings.Index(line[offset:], "=")
	if eq < 0 {
		return "", "", false
	}
	return line[:offset+eq], line[offset+eq+1:], true
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

func mask(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:8])
}
