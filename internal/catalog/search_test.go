package catalog

import (
	"reflect"
	"testing"

	domain "github.com/hanko-field/catalog/internal/domain"
)

func searchFixture() []domain.CatalogItem {
	return []domain.CatalogItem{
		{ID: "p1", Name: "Vestido Floral", CategoryID: "vestidos", Slug: "vestido-floral"},
		{ID: "p2", Name: "Saia Midi", CategoryID: "saias", Collection: "Coleção Verão"},
		{ID: "p3", Name: "Blusa Básica", CategoryID: "blusas", Tags: domain.TokenSet{"algodão", "essencial"}},
		{ID: "p4", Name: "Vestido Longo", CategoryID: "vestidos"},
		{ID: "p5", Name: "Conjunto", CategoryID: "kits"},
	}
}

func ids(results []domain.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Item.ID)
	}
	return out
}

func TestVariants(t *testing.T) {
	cases := map[string][]string{
		"a":         nil,
		"  É ":      nil,
		"Vestido":   {"vestido", "vestidos"},
		"VESTIDOS":  {"vestidos", "vestido"},
		"as":        {"as"},
		" Algodão ": {"algodao", "algodaos"},
	}
	for query, want := range cases {
		if got := Variants(query); !reflect.DeepEqual(got, want) {
			t.Fatalf("Variants(%q) = %#v, want %#v", query, got, want)
		}
	}
}

func TestSearch(t *testing.T) {
	items := searchFixture()

	t.Run("short query returns nothing", func(t *testing.T) {
		if got := Search("v", items, 10); len(got) != 0 {
			t.Fatalf("expected no results got %#v", got)
		}
	})

	t.Run("accent and case insensitive", func(t *testing.T) {
		got := Search("BASICA", items, 10)
		if !reflect.DeepEqual(ids(got), []string{"p3"}) {
			t.Fatalf("unexpected results %v", ids(got))
		}
		if got[0].MatchedField != FieldName {
			t.Fatalf("expected name match got %q", got[0].MatchedField)
		}
	})

	t.Run("plural tolerance keeps candidate order", func(t *testing.T) {
		got := Search("vestidos", items, 10)
		if !reflect.DeepEqual(ids(got), []string{"p1", "p4"}) {
			t.Fatalf("unexpected results %v", ids(got))
		}
	})

	t.Run("collection and tags", func(t *testing.T) {
		if got := Search("verao", items, 10); !reflect.DeepEqual(ids(got), []string{"p2"}) || got[0].MatchedField != FieldCollection {
			t.Fatalf("unexpected collection results %#v", got)
		}
		if got := Search("algodao", items, 10); !reflect.DeepEqual(ids(got), []string{"p3"}) || got[0].MatchedField != FieldTags {
			t.Fatalf("unexpected tag results %#v", got)
		}
	})

	t.Run("max results caps output", func(t *testing.T) {
		if got := Search("vestido", items, 1); !reflect.DeepEqual(ids(got), []string{"p1"}) {
			t.Fatalf("unexpected results %v", ids(got))
		}
	})

	t.Run("results are a subset of candidates", func(t *testing.T) {
		for _, r := range Search("sa", items, 0) {
			found := false
			for _, item := range items {
				if item.ID == r.Item.ID {
					found = true
				}
			}
			if !found {
				t.Fatalf("result %q not in candidates", r.Item.ID)
			}
		}
	})

	t.Run("no match", func(t *testing.T) {
		if got := Search("jaqueta", items, 10); len(got) != 0 {
			t.Fatalf("expected no results got %v", ids(got))
		}
	})
}

func TestSearchCategoryFallback(t *testing.T) {
	items := []domain.CatalogItem{
		{ID: "x1", Name: "Peça A", CategoryID: "vestidos-longos"},
		{ID: "x2", Name: "Peça B", CategoryID: "saias"},
		{ID: "x3", Name: "Peça C", CategoryID: "Vestidos_Longos"},
	}

	got := Search("Vestidos Longos", items, 10)
	if !reflect.DeepEqual(ids(got), []string{"x1", "x3"}) {
		t.Fatalf("expected fallback hits x1 x3, got %v", ids(got))
	}
	for _, r := range got {
		if !r.Fallback || r.MatchedField != FieldCategory {
			t.Fatalf("expected fallback category hit, got %#v", r)
		}
	}

	if got := Search("vestidos longo", items, 1); !reflect.DeepEqual(ids(got), []string{"x1"}) {
		t.Fatalf("expected capped fallback, got %v", ids(got))
	}

	direct := Search("saia", items, 10)
	if len(direct) != 1 || direct[0].Fallback {
		t.Fatalf("expected substring hit without fallback, got %#v", direct)
	}
}

func TestSearchCategories(t *testing.T) {
	categories := []domain.Category{
		{ID: "vestidos", Name: "Vestidos", Slug: "vestidos"},
		{ID: "saias", Name: "Saias", Slug: "saias"},
		{ID: "acessorios", Name: "Acessórios", Slug: "acessorios"},
	}

	if got := SearchCategories("ACESSORIO", categories, 5); len(got) != 1 || got[0].ID != "acessorios" {
		t.Fatalf("unexpected results %#v", got)
	}
	if got := SearchCategories("s", categories, 5); got != nil {
		t.Fatalf("expected nil for short query, got %#v", got)
	}
	if got := SearchCategories("as", categories, 1); len(got) != 1 || got[0].ID != "saias" {
		t.Fatalf("expected capped result, got %#v", got)
	}
}
