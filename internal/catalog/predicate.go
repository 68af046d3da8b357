package catalog

import (
	"strconv"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/catalog/internal/domain"
	"github.com/hanko-field/catalog/internal/platform/cache"
	"github.com/hanko-field/catalog/internal/platform/textutil"
)

// Predicate is a filter request prepared for repeated evaluation.
type Predicate struct {
	styles    []string
	vibes     []string
	materials []string
	priceMin  *decimal.Decimal
	priceMax  *decimal.Decimal
	isNew     *bool
}

// CompilePredicate folds the request tokens once. Tokens compare ignoring
// case, diacritics and surrounding whitespace.
func CompilePredicate(req domain.FilterRequest) Predicate {
	return Predicate{
		styles:    textutil.FoldAll(req.Styles),
		vibes:     textutil.FoldAll(req.Vibes),
		materials: textutil.FoldAll(req.Materials),
		priceMin:  req.PriceMin,
		priceMax:  req.PriceMax,
		isNew:     req.IsNew,
	}
}

// Matches reports whether item satisfies every constrained dimension.
func (p Predicate) Matches(item domain.CatalogItem) bool {
	if len(p.styles) > 0 && !anyStyle(item, p.styles) {
		return false
	}
	if len(p.vibes) > 0 && !anyOf(item.Vibes, p.vibes) {
		return false
	}
	if len(p.materials) > 0 && !anyOf(item.Materials, p.materials) {
		return false
	}
	if p.priceMin != nil || p.priceMax != nil {
		price := item.EffectivePrice()
		if p.priceMin != nil && price.LessThan(*p.priceMin) {
			return false
		}
		if p.priceMax != nil && price.GreaterThan(*p.priceMax) {
			return false
		}
	}
	if p.isNew != nil && item.IsNew != *p.isNew {
		return false
	}
	return true
}

// Signature renders the predicate canonically: token order, duplicates and
// cosmetic differences in the request do not change it.
func (p Predicate) Signature() string {
	return cache.Key("p",
		"s="+cache.SetKey(p.styles),
		"v="+cache.SetKey(p.vibes),
		"m="+cache.SetKey(p.materials),
		"min="+bound(p.priceMin),
		"max="+bound(p.priceMax),
		"new="+flag(p.isNew),
	)
}

// Filter returns the items accepted by the predicate, preserving order.
func (p Predicate) Filter(items []domain.CatalogItem) []domain.CatalogItem {
	matched := make([]domain.CatalogItem, 0, len(items))
	for _, item := range items {
		if p.Matches(item) {
			matched = append(matched, item)
		}
	}
	return matched
}

// Matches evaluates a single request against a single item.
func Matches(item domain.CatalogItem, req domain.FilterRequest) bool {
	return CompilePredicate(req).Matches(item)
}

// Style tokens also match the category so category-style items surface under
// the style facet.
func anyStyle(item domain.CatalogItem, wanted []string) bool {
	category := textutil.Fold(item.CategoryID)
	for _, token := range wanted {
		if token == category {
			return true
		}
	}
	return anyOf(item.Styles, wanted)
}

func anyOf(set domain.TokenSet, wanted []string) bool {
	for _, token := range wanted {
		if set.ContainsFold(token) {
			return true
		}
	}
	return false
}

func bound(value *decimal.Decimal) string {
	if value == nil {
		return ""
	}
	return value.String()
}

func flag(value *bool) string {
	if value == nil {
		return ""
	}
	return strconv.FormatBool(*value)
}
