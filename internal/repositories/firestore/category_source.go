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

const defaultCategoriesCollection = "categories"

// CategorySource lists category documents ordered by document id.
type CategorySource struct {
	collection *pfirestore.Collection
}

var _ repositories.CategorySource = (*CategorySource)(nil)

// NewCategorySource constructs a Firestore-backed category source. An empty
// name selects the "categories" collection.
func NewCategorySource(provider *pfirestore.Provider, name string) (*CategorySource, error) {
	if provider == nil {
		return nil, errors.New("category source: firestore provider is required")
	}
	if strings.TrimSpace(name) == "" {
		name = defaultCategoriesCollection
	}
	collection, err := pfirestore.NewCollection(provider, name)
	if err != nil {
		return nil, err
	}
	return &CategorySource{collection: collection}, nil
}

// ListCategories reads the whole collection ordered by document id.
func (s *CategorySource) ListCategories(ctx context.Context) ([]domain.RawDocument, error) {
	return s.collection.Documents(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
}
