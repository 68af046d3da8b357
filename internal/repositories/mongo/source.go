package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	domain "github.com/hanko-field/catalog/internal/domain"
	"github.com/hanko-field/catalog/internal/repositories"
)

const defaultConnectTimeout = 5 * time.Second

// Config selects the MongoDB deployment and collections backing the catalog.
type Config struct {
	URI                  string
	Database             string
	ProductsCollection   string
	CategoriesCollection string
	StatusField          string
	ConnectTimeout       time.Duration
}

// Store owns the MongoDB client shared by the product and category sources.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    Config

	mu     sync.RWMutex
	closed bool
}

var (
	_ repositories.DocumentSource = (*Store)(nil)
	_ repositories.CategorySource = (*Store)(nil)
	_ repositories.Pinger         = (*Store)(nil)
)

// Open connects to MongoDB and verifies the primary is reachable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("mongo source: uri is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, errors.New("mongo source: database is required")
	}
	if cfg.ProductsCollection == "" {
		cfg.ProductsCollection = "products"
	}
	if cfg.CategoriesCollection == "" {
		cfg.CategoriesCollection = "categories"
	}
	if cfg.StatusField == "" {
		cfg.StatusField = "status"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, wrap("connect", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, wrap("ping", err)
	}
	return &Store{client: client, db: client.Database(cfg.Database), cfg: cfg}, nil
}

// FetchCandidates returns product documents whose status field equals status.
func (s *Store) FetchCandidates(ctx context.Context, status string) ([]domain.RawDocument, error) {
	filter := bson.D{}
	if status = strings.TrimSpace(status); status != "" {
		filter = bson.D{{Key: s.cfg.StatusField, Value: status}}
	}
	return s.find(ctx, s.cfg.ProductsCollection, filter, nil)
}

// ListCategories returns every category document ordered by _id.
func (s *Store) ListCategories(ctx context.Context) ([]domain.RawDocument, error) {
	return s.find(ctx, s.cfg.CategoriesCollection, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *Store) find(ctx context.Context, collection string, filter bson.D, opts *options.FindOptions) ([]domain.RawDocument, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cursor, err := s.db.Collection(collection).Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, wrap(collection+".find", err)
	}
	defer cursor.Close(ctx)

	var docs []domain.RawDocument
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, wrap(collection+".decode", err)
		}
		docs = append(docs, toRawDocument(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, wrap(collection+".cursor", err)
	}
	return docs, nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// Close disconnects the client. Subsequent calls are no-ops.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &repositories.SourceError{Op: "mongo", Err: errors.New("store closed"), Unavailable: true}
	}
	return nil
}

// toRawDocument lifts the _id into RawDocument.ID and converts BSON-specific
// types to the plain Go values the normalizer understands.
func toRawDocument(raw bson.M) domain.RawDocument {
	fields := make(map[string]any, len(raw))
	var id string
	for key, value := range raw {
		if key == "_id" {
			id = idString(value)
			continue
		}
		fields[key] = plain(value)
	}
	return domain.RawDocument{ID: id, Fields: fields}
}

func idString(value any) string {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func plain(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = plain(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, elem := range v {
			out[elem.Key] = plain(elem.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plain(item)
		}
		return out
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Decimal128:
		return v.String()
	case primitive.ObjectID:
		return v.Hex()
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &repositories.SourceError{
		Op:          "mongo " + op,
		Err:         err,
		NotFound:    errors.Is(err, mongo.ErrNoDocuments),
		Unavailable: mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected),
	}
}
