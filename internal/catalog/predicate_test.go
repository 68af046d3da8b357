package catalog

import (
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/catalog/internal/domain"
)

func price(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func boolPtr(v bool) *bool {
	return &v
}

func TestMatches(t *testing.T) {
	item := domain.CatalogItem{
		ID:           "p1",
		Name:         "Vestido Boho",
		CategoryID:   "vestidos",
		Styles:       domain.TokenSet{"Boho"},
		Vibes:        domain.TokenSet{"praia", "verão"},
		Materials:    domain.TokenSet{"linho"},
		PriceRegular: decimal.RequireFromString("200"),
		PriceSale:    price("150"),
		IsNew:        true,
	}

	cases := []struct {
		name string
		req  domain.FilterRequest
		want bool
	}{
		{name: "empty request matches everything", req: domain.FilterRequest{}, want: true},
		{name: "blank tokens are no constraint", req: domain.FilterRequest{Styles: []string{" ", ""}}, want: true},
		{name: "style case insensitive", req: domain.FilterRequest{Styles: []string{"boho"}}, want: true},
		{name: "style falls back to category", req: domain.FilterRequest{Styles: []string{"VESTIDOS"}}, want: true},
		{name: "style miss", req: domain.FilterRequest{Styles: []string{"minimal"}}, want: false},
		{name: "or within dimension", req: domain.FilterRequest{Vibes: []string{"cidade", "praia"}}, want: true},
		{name: "and across dimensions", req: domain.FilterRequest{Vibes: []string{"praia"}, Materials: []string{"seda"}}, want: false},
		{name: "vibe ignores diacritics", req: domain.FilterRequest{Vibes: []string{" VERAO "}}, want: true},
		{name: "material hit", req: domain.FilterRequest{Materials: []string{"Linho"}}, want: true},
		{name: "min bound inclusive on effective price", req: domain.FilterRequest{PriceMin: price("150")}, want: true},
		{name: "max bound inclusive on effective price", req: domain.FilterRequest{PriceMax: price("150")}, want: true},
		{name: "regular price ignored when on sale", req: domain.FilterRequest{PriceMin: price("180")}, want: false},
		{name: "below max", req: domain.FilterRequest{PriceMax: price("149.99")}, want: false},
		{name: "isNew true", req: domain.FilterRequest{IsNew: boolPtr(true)}, want: true},
		{name: "isNew false", req: domain.FilterRequest{IsNew: boolPtr(false)}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(item, tc.req); got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}

func TestMatchesRegularPriceWithoutSale(t *testing.T) {
	item := domain.CatalogItem{ID: "p", PriceRegular: decimal.RequireFromString("99.90")}
	if !Matches(item, domain.FilterRequest{PriceMin: price("99.90"), PriceMax: price("99.90")}) {
		t.Fatalf("expected regular price to satisfy inclusive bounds")
	}
}

func TestPredicateFilterPreservesOrder(t *testing.T) {
	items := []domain.CatalogItem{
		{ID: "a", IsNew: true},
		{ID: "b"},
		{ID: "c", IsNew: true},
	}
	p := CompilePredicate(domain.FilterRequest{IsNew: boolPtr(true)})
	got := p.Filter(items)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected filter result %#v", got)
	}
	if blank := CompilePredicate(domain.FilterRequest{Styles: []string{""}}); blank.Signature() != CompilePredicate(domain.FilterRequest{}).Signature() {
		t.Fatalf("expected blank tokens to compile to the unconstrained predicate")
	}
}

func TestPredicateSignatureIgnoresCosmeticDifferences(t *testing.T) {
	a := CompilePredicate(domain.FilterRequest{Styles: []string{"Créoles", "boho"}, PriceMax: price("30.0")})
	b := CompilePredicate(domain.FilterRequest{Styles: []string{"boho ", "creoles", "BOHO"}, PriceMax: price("30")})
	if a.Signature() != b.Signature() {
		t.Fatalf("signatures differ:\n%s\n%s", a.Signature(), b.Signature())
	}

	c := CompilePredicate(domain.FilterRequest{Styles: []string{"creoles"}, PriceMax: price("30")})
	if a.Signature() == c.Signature() {
		t.Fatalf("different token sets must not share a signature")
	}
	if CompilePredicate(domain.FilterRequest{IsNew: boolPtr(false)}).Signature() == CompilePredicate(domain.FilterRequest{}).Signature() {
		t.Fatalf("isNew=false must differ from unconstrained")
	}
}

func TestPredicateSignatureSeparatesCommaTokens(t *testing.T) {
	pair := CompilePredicate(domain.FilterRequest{Styles: []string{"boho", "chic"}})
	single := CompilePredicate(domain.FilterRequest{Styles: []string{"boho,chic"}})
	if pair.Signature() == single.Signature() {
		t.Fatalf("two tokens and one comma-bearing token share signature %s", pair.Signature())
	}

	split := CompilePredicate(domain.FilterRequest{Styles: []string{"boho"}, Vibes: []string{"chic"}})
	joined := CompilePredicate(domain.FilterRequest{Styles: []string{"boho|v=chic"}})
	if split.Signature() == joined.Signature() {
		t.Fatalf("separator inside a token collides across dimensions: %s", split.Signature())
	}
}
