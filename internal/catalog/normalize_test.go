package catalog

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/catalog/internal/domain"
)

func fixedNormalizer() (*Normalizer, time.Time) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return NewNormalizer(WithClock(func() time.Time { return now })), now
}

func TestNormalizeMultiValueShapes(t *testing.T) {
	n, _ := fixedNormalizer()

	cases := []struct {
		name  string
		value any
		want  domain.TokenSet
	}{
		{name: "slice", value: []any{"boho", "chic"}, want: domain.TokenSet{"boho", "chic"}},
		{name: "string slice", value: []string{"boho", "chic"}, want: domain.TokenSet{"boho", "chic"}},
		{name: "index keyed map", value: map[string]any{"1": "chic", "0": "boho"}, want: domain.TokenSet{"boho", "chic"}},
		{name: "index keyed map past nine", value: map[string]any{"10": "k", "2": "c", "0": "a"}, want: domain.TokenSet{"a", "c", "k"}},
		{name: "bool map", value: map[string]any{"chic": true, "boho": false}, want: domain.TokenSet{"chic"}},
		{name: "comma string", value: "boho, chic ,", want: domain.TokenSet{"boho", "chic"}},
		{name: "duplicates folded", value: []any{"Boho", "boho", " BOHO "}, want: domain.TokenSet{"Boho"}},
		{name: "missing", value: nil, want: domain.TokenSet{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := map[string]any{}
			if tc.value != nil {
				fields["styles"] = tc.value
			}
			item := n.Normalize(domain.RawDocument{ID: "p1", Fields: fields})
			if !reflect.DeepEqual(item.Styles, tc.want) {
				t.Fatalf("expected %#v got %#v", tc.want, item.Styles)
			}
		})
	}
}

func TestNormalizeEquivalentShapesMatchIdentically(t *testing.T) {
	n, _ := fixedNormalizer()
	asMap := n.Normalize(domain.RawDocument{ID: "a", Fields: map[string]any{"vibes": map[string]any{"chic": true}}})
	asList := n.Normalize(domain.RawDocument{ID: "b", Fields: map[string]any{"vibes": []any{"chic"}}})

	req := domain.FilterRequest{Vibes: []string{"CHIC"}}
	if Matches(asMap, req) != Matches(asList, req) || !Matches(asMap, req) {
		t.Fatalf("expected both shapes to match, map=%v list=%v", Matches(asMap, req), Matches(asList, req))
	}
}

func TestNormalizeDefaults(t *testing.T) {
	n, now := fixedNormalizer()
	item := n.Normalize(domain.RawDocument{ID: " p9 "})

	if item.ID != "p9" {
		t.Fatalf("expected trimmed id, got %q", item.ID)
	}
	if item.Name != domain.UntitledName {
		t.Fatalf("expected placeholder name, got %q", item.Name)
	}
	if item.CategoryID != domain.UncategorizedID {
		t.Fatalf("expected sentinel category, got %q", item.CategoryID)
	}
	if !item.PriceRegular.IsZero() || item.PriceSale != nil {
		t.Fatalf("expected zero regular and nil sale, got %v %v", item.PriceRegular, item.PriceSale)
	}
	if item.Popularity != 0 || item.IsNew {
		t.Fatalf("expected zero popularity and not new")
	}
	if !item.CreatedAt.Equal(now) || item.CreatedAtReliable {
		t.Fatalf("expected defaulted unreliable timestamp, got %v reliable=%v", item.CreatedAt, item.CreatedAtReliable)
	}
}

func TestNormalizeAliasesAndPrices(t *testing.T) {
	n, _ := fixedNormalizer()
	item := n.Normalize(domain.RawDocument{ID: "p2", Fields: map[string]any{
		"title":      "Vestido Floral",
		"category":   "vestidos",
		"price":      map[string]any{"regular": int64(199), "sale": "149,90"},
		"new":        "true",
		"material":   "linho",
		"salesCount": float64(42),
	}})

	if item.Name != "Vestido Floral" || item.CategoryID != "vestidos" {
		t.Fatalf("unexpected aliases: %#v", item)
	}
	if !item.PriceRegular.Equal(decimal.NewFromInt(199)) {
		t.Fatalf("expected regular 199 got %s", item.PriceRegular)
	}
	if item.PriceSale == nil || !item.PriceSale.Equal(decimal.RequireFromString("149.90")) {
		t.Fatalf("expected sale 149.90 got %v", item.PriceSale)
	}
	if !item.IsNew {
		t.Fatalf("expected isNew from alias")
	}
	if !reflect.DeepEqual(item.Materials, domain.TokenSet{"linho"}) {
		t.Fatalf("unexpected materials %#v", item.Materials)
	}
	if item.Popularity != 42 {
		t.Fatalf("expected popularity 42 got %v", item.Popularity)
	}
}

func TestNormalizePriceAnomalies(t *testing.T) {
	n, _ := fixedNormalizer()

	negative := n.Normalize(domain.RawDocument{ID: "n", Fields: map[string]any{"priceRegular": -10.0, "priceSale": -1}})
	if !negative.PriceRegular.IsZero() {
		t.Fatalf("expected negative regular price clamped to zero, got %s", negative.PriceRegular)
	}
	if negative.PriceSale != nil {
		t.Fatalf("expected negative sale price dropped")
	}

	garbage := n.Normalize(domain.RawDocument{ID: "g", Fields: map[string]any{"priceRegular": "abc", "priceSale": true}})
	if !garbage.PriceRegular.IsZero() || garbage.PriceSale != nil {
		t.Fatalf("expected garbage prices to default, got %s %v", garbage.PriceRegular, garbage.PriceSale)
	}
	nonFinite := []struct {
		name  string
		value any
	}{
		{name: "float32 nan", value: float32(math.NaN())},
		{name: "float32 +inf", value: float32(math.Inf(1))},
		{name: "float32 -inf", value: float32(math.Inf(-1))},
		{name: "float64 nan", value: math.NaN()},
		{name: "float64 +inf", value: math.Inf(1)},
	}
	for _, tc := range nonFinite {
		t.Run(tc.name, func(t *testing.T) {
			item := n.Normalize(domain.RawDocument{ID: "f", Fields: map[string]any{"priceRegular": tc.value, "priceSale": tc.value, "popularity": tc.value}})
			if !item.PriceRegular.IsZero() || item.PriceSale != nil || item.Popularity != 0 {
				t.Fatalf("expected non-finite numbers to default, got %s %v %v", item.PriceRegular, item.PriceSale, item.Popularity)
			}
		})
	}
}

func TestNormalizeDerivesIDForAnonymousDocuments(t *testing.T) {
	n, _ := fixedNormalizer()
	fields := map[string]any{"name": "Anel Lua", "tags": []any{"prata"}, "price": map[string]any{"regular": 10, "sale": 8}}

	first := n.Normalize(domain.RawDocument{Fields: fields})
	if first.ID == "" {
		t.Fatalf("expected a derived id")
	}
	again := n.Normalize(domain.RawDocument{ID: "  ", Fields: map[string]any{"price": map[string]any{"sale": 8, "regular": 10}, "tags": []any{"prata"}, "name": "Anel Lua"}})
	if again.ID != first.ID {
		t.Fatalf("expected equal contents to derive the same id, got %q and %q", first.ID, again.ID)
	}
	other := n.Normalize(domain.RawDocument{Fields: map[string]any{"name": "Anel Sol"}})
	if other.ID == first.ID {
		t.Fatalf("expected different contents to derive different ids")
	}
	if explicit := n.Normalize(domain.RawDocument{Fields: map[string]any{"_id": "legacy-7"}}); explicit.ID != "legacy-7" {
		t.Fatalf("expected stored _id to win, got %q", explicit.ID)
	}
}

func TestNormalizeTimestamps(t *testing.T) {
	n, now := fixedNormalizer()
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	cases := []struct {
		name     string
		value    any
		reliable bool
		want     time.Time
	}{
		{name: "time", value: want.In(time.FixedZone("BRT", -3*3600)), reliable: true, want: want},
		{name: "seconds map", value: map[string]any{"seconds": int64(1700000000), "nanoseconds": int64(0)}, reliable: true, want: want},
		{name: "exported seconds map", value: map[string]any{"_seconds": float64(1700000000)}, reliable: true, want: want},
		{name: "iso string", value: "2023-11-14T22:13:20Z", reliable: true, want: want},
		{name: "date only", value: "2023-11-14", reliable: true, want: time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)},
		{name: "unparseable", value: "yesterday", reliable: false, want: now},
		{name: "wrong type", value: []any{1}, reliable: false, want: now},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := n.Normalize(domain.RawDocument{ID: "t", Fields: map[string]any{"createdAt": tc.value}})
			if item.CreatedAtReliable != tc.reliable {
				t.Fatalf("expected reliable=%v got %v", tc.reliable, item.CreatedAtReliable)
			}
			if !item.CreatedAt.Equal(tc.want) {
				t.Fatalf("expected %v got %v", tc.want, item.CreatedAt)
			}
			if item.CreatedAt.Location() != time.UTC {
				t.Fatalf("expected UTC location got %v", item.CreatedAt.Location())
			}
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	n, _ := fixedNormalizer()
	styles := []any{"boho"}
	fields := map[string]any{"styles": styles}
	item := n.Normalize(domain.RawDocument{ID: "p", Fields: fields})
	item.Styles[0] = "changed"

	if styles[0] != "boho" {
		t.Fatalf("normalized tokens alias the raw document")
	}
	if len(fields) != 1 {
		t.Fatalf("raw fields were modified: %#v", fields)
	}
}

func TestDenormalizeRoundTrip(t *testing.T) {
	n, _ := fixedNormalizer()
	sale := decimal.RequireFromString("79.90")
	original := domain.CatalogItem{
		ID:                "p1",
		Name:              "Saia Midi",
		CategoryID:        "saias",
		Collection:        "Verão",
		Slug:              "saia-midi",
		Styles:            domain.TokenSet{"boho"},
		Tags:              domain.TokenSet{"linho"},
		Materials:         domain.TokenSet{"linho"},
		Vibes:             domain.TokenSet{"praia"},
		PriceRegular:      decimal.RequireFromString("120"),
		PriceSale:         &sale,
		IsNew:             true,
		Popularity:        7,
		CreatedAt:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		CreatedAtReliable: true,
	}

	got := n.Normalize(Denormalize(original))
	if !reflect.DeepEqual(got.Styles, original.Styles) || got.Name != original.Name || got.Collection != original.Collection {
		t.Fatalf("unexpected round trip %#v", got)
	}
	if !got.PriceRegular.Equal(original.PriceRegular) || got.PriceSale == nil || !got.PriceSale.Equal(sale) {
		t.Fatalf("prices changed: %s %v", got.PriceRegular, got.PriceSale)
	}
	if !got.CreatedAt.Equal(original.CreatedAt) || !got.CreatedAtReliable {
		t.Fatalf("timestamp changed: %v", got.CreatedAt)
	}
}

func TestNormalizeCategory(t *testing.T) {
	category := NormalizeCategory(domain.RawDocument{ID: "vestidos", Fields: map[string]any{"title": "Vestidos", "slug": "vestidos"}})
	if category.Name != "Vestidos" || category.Slug != "vestidos" {
		t.Fatalf("unexpected category %#v", category)
	}
	bare := NormalizeCategory(domain.RawDocument{ID: "saias"})
	if bare.Name != "saias" {
		t.Fatalf("expected name to fall back to id, got %q", bare.Name)
	}
}
