// Package fixture serves catalog documents from a YAML file, for local
// development and demos without a document store.
package fixture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/hanko-field/catalog/internal/domain"
	"github.com/hanko-field/catalog/internal/repositories"
)

// File is the on-disk layout:
//
//	products:
//	  - id: colar-lua
//	    name: Colar Lua
//	    status: published
//	categories:
//	  - id: colares
//	    name: Colares
type File struct {
	Products   []map[string]any `yaml:"products"`
	Categories []map[string]any `yaml:"categories"`
}

// Source is an immutable in-memory document source.
type Source struct {
	statusField string
	products    []domain.RawDocument
	categories  []domain.RawDocument
}

var (
	_ repositories.DocumentSource = (*Source)(nil)
	_ repositories.CategorySource = (*Source)(nil)
	_ repositories.Pinger         = (*Source)(nil)
)

// Open reads and parses the fixture file at path.
func Open(path, statusField string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture source: %w", err)
	}
	return Load(bytes.NewReader(data), statusField)
}

// Load parses fixture YAML from r.
func Load(r io.Reader, statusField string) (*Source, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("fixture source: decode: %w", err)
	}
	if strings.TrimSpace(statusField) == "" {
		statusField = "status"
	}

	products, err := documents("products", file.Products)
	if err != nil {
		return nil, err
	}
	categories, err := documents("categories", file.Categories)
	if err != nil {
		return nil, err
	}
	return &Source{statusField: statusField, products: products, categories: categories}, nil
}

// FetchCandidates returns the products whose status field equals status, in file order.
func (s *Source) FetchCandidates(ctx context.Context, status string) ([]domain.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	status = strings.TrimSpace(status)
	out := make([]domain.RawDocument, 0, len(s.products))
	for _, doc := range s.products {
		if status != "" {
			if value, _ := doc.Fields[s.statusField].(string); value != status {
				continue
			}
		}
		out = append(out, copyDocument(doc))
	}
	return out, nil
}

// ListCategories returns copies of the category documents in file order.
func (s *Source) ListCategories(ctx context.Context) ([]domain.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.RawDocument, 0, len(s.categories))
	for _, doc := range s.categories {
		out = append(out, copyDocument(doc))
	}
	return out, nil
}

// Ping always succeeds once the file has been parsed.
func (s *Source) Ping(context.Context) error { return nil }

func documents(section string, entries []map[string]any) ([]domain.RawDocument, error) {
	docs := make([]domain.RawDocument, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		id := strings.TrimSpace(fmt.Sprint(entry["id"]))
		if entry["id"] == nil || id == "" {
			return nil, fmt.Errorf("fixture source: %s[%d] is missing an id", section, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("fixture source: duplicate %s id %q", section, id)
		}
		seen[id] = struct{}{}

		fields := make(map[string]any, len(entry))
		for key, value := range entry {
			if key != "id" {
				fields[key] = value
			}
		}
		docs = append(docs, domain.RawDocument{ID: id, Fields: fields})
	}
	return docs, nil
}

// copyDocument shallow-copies the top-level field map so callers cannot
// mutate the fixture through a returned document.
func copyDocument(doc domain.RawDocument) domain.RawDocument {
	fields := make(map[string]any, len(doc.Fields))
	for key, value := range doc.Fields {
		fields[key] = value
	}
	return domain.RawDocument{ID: doc.ID, Fields: fields}
}
