package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/hanko-field/catalog/internal/domain"
)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection reads untyped documents from a single Firestore collection.
type Collection struct {
	provider *Provider
	name     string
}

// NewCollection binds a reader to the named collection.
func NewCollection(provider *Provider, name string) (*Collection, error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	return &Collection{provider: provider, name: name}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Documents runs the query and returns every document as raw fields.
func (c *Collection) Documents(ctx context.Context, build QueryBuilder) ([]domain.RawDocument, error) {
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, WrapError(c.op("client"), err)
	}

	query := client.Collection(c.name).Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []domain.RawDocument
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		docs = append(docs, RawDocument(snapshot))
	}
	return docs, nil
}

// Ping checks that the collection can be read.
func (c *Collection) Ping(ctx context.Context) error {
	return c.provider.Ping(ctx, c.name)
}

func (c *Collection) op(action string) string {
	return fmt.Sprintf("%s.%s", c.name, strings.ToLower(action))
}

// RawDocument converts a snapshot into an untyped record.
func RawDocument(snap *firestore.DocumentSnapshot) domain.RawDocument {
	if snap == nil {
		return domain.RawDocument{}
	}
	data := snap.Data()
	if data == nil {
		data = map[string]any{}
	}
	id := ""
	if snap.Ref != nil {
		id = snap.Ref.ID
	}
	return domain.RawDocument{ID: id, Fields: data}
}
