package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/catalog/internal/domain"
	pfirestore "github.com/hanko-field/catalog/internal/platform/firestore"
	"github.com/hanko-field/catalog/internal/repositories"
)

const (
	defaultProductsCollection = "products"
	defaultStatusField        = "status"
)

// ProductSource fetches product documents from Firestore. Only the status
// predicate is pushed down; every other constraint is evaluated in memory
// because the remaining fields have no stable shape to index.
type ProductSource struct {
	collection  *pfirestore.Collection
	statusField string
}

// ProductSourceOption customises a ProductSource.
type ProductSourceOption func(*productSourceConfig)

type productSourceConfig struct {
	collection  string
	statusField string
}

// WithProductsCollection overrides the collection name.
func WithProductsCollection(name string) ProductSourceOption {
	return func(cfg *productSourceConfig) {
		if strings.TrimSpace(name) != "" {
			cfg.collection = strings.TrimSpace(name)
		}
	}
}

// WithStatusField overrides the document field holding the publication status.
func WithStatusField(field string) ProductSourceOption {
	return func(cfg *productSourceConfig) {
		if strings.TrimSpace(field) != "" {
			cfg.statusField = strings.TrimSpace(field)
		}
	}
}

var (
	_ repositories.DocumentSource = (*ProductSource)(nil)
	_ repositories.Pinger         = (*ProductSource)(nil)
)

// NewProductSource constructs a Firestore-backed product source.
func NewProductSource(provider *pfirestore.Provider, opts ...ProductSourceOption) (*ProductSource, error) {
	if provider == nil {
		return nil, errors.New("product source: firestore provider is required")
	}
	cfg := productSourceConfig{collection: defaultProductsCollection, statusField: defaultStatusField}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	collection, err := pfirestore.NewCollection(provider, cfg.collection)
	if err != nil {
		return nil, err
	}
	return &ProductSource{collection: collection, statusField: cfg.statusField}, nil
}

// FetchCandidates returns every document whose status equals status. An
// empty status fetches the whole collection.
func (s *ProductSource) FetchCandidates(ctx context.Context, status string) ([]domain.RawDocument, error) {
	if s == nil || s.collection == nil {
		return nil, errors.New("product source not initialised")
	}
	status = strings.TrimSpace(status)
	return s.collection.Documents(ctx, func(q firestore.Query) firestore.Query {
		if status == "" {
			return q
		}
		return q.Where(s.statusField, "==", status)
	})
}

// Ping verifies the products collection is readable.
func (s *ProductSource) Ping(ctx context.Context) error {
	return s.collection.Ping(ctx)
}
