package catalog

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/catalog/internal/domain"
)

func TestFilterScenarioStyleFallsBackToCategory(t *testing.T) {
	n := NewNormalizer()
	items := n.NormalizeAll([]domain.RawDocument{
		{ID: "creole", Fields: map[string]any{"name": "Créole Dorée", "categoryId": "creoles", "priceRegular": 25}},
		{ID: "puce", Fields: map[string]any{"name": "Puce Lune", "categoryId": "puces", "priceRegular": 20}},
	})

	ceiling := decimal.NewFromInt(30)
	got := CompilePredicate(domain.FilterRequest{Styles: []string{"creoles"}, PriceMax: &ceiling}).Filter(items)
	if !reflect.DeepEqual(itemIDs(got), []string{"creole"}) {
		t.Fatalf("expected only creole, got %v", itemIDs(got))
	}
}

func TestSearchScenarioPluralTolerance(t *testing.T) {
	items := []domain.CatalogItem{
		{ID: "b", Name: "Boucle d'oreille Lune", CategoryID: "boucles-d-oreilles"},
		{ID: "c", Name: "Collier Lune", CategoryID: "colliers"},
	}
	for _, query := range []string{"boucle", "boucles", "Bouclé "} {
		if got := Search(query, items, 10); !reflect.DeepEqual(ids(got), []string{"b"}) {
			t.Fatalf("query %q: expected [b] got %v", query, ids(got))
		}
	}
}

func TestUnconstrainedDimensionIgnoresItemValues(t *testing.T) {
	req := domain.FilterRequest{Materials: []string{"prata"}}
	base := domain.CatalogItem{ID: "p", Materials: domain.TokenSet{"prata"}}
	variants := []domain.TokenSet{nil, {}, {"boho"}, {"chic", "minimal"}}
	for _, styles := range variants {
		item := base
		item.Styles = styles
		if !Matches(item, req) {
			t.Fatalf("styles %v changed the outcome of a style-free request", styles)
		}
	}
}
