package firestore

import (
	"testing"

	"github.com/hanko-field/catalog/internal/platform/config"
	pfirestore "github.com/hanko-field/catalog/internal/platform/firestore"
)

func TestNewProductSourceDefaults(t *testing.T) {
	if _, err := NewProductSource(nil); err == nil {
		t.Fatalf("expected error for nil provider")
	}

	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "test-project"})
	src, err := NewProductSource(provider, WithProductsCollection(" "), WithStatusField(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.collection.Name() != "products" {
		t.Fatalf("expected default collection, got %q", src.collection.Name())
	}
	if src.statusField != "status" {
		t.Fatalf("expected default status field, got %q", src.statusField)
	}

	src, err = NewProductSource(provider, WithProductsCollection(" catalog_items "), WithStatusField("state"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.collection.Name() != "catalog_items" || src.statusField != "state" {
		t.Fatalf("options not applied: %q %q", src.collection.Name(), src.statusField)
	}
}

func TestNewCategorySource(t *testing.T) {
	if _, err := NewCategorySource(nil, "categories"); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "test-project"})
	src, err := NewCategorySource(provider, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.collection.Name() != "categories" {
		t.Fatalf("expected default collection, got %q", src.collection.Name())
	}
}
