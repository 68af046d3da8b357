package catalog

import (
	"strings"
	"unicode/utf8"

	domain "github.com/hanko-field/catalog/internal/domain"
	"github.com/hanko-field/catalog/internal/platform/textutil"
)

// MinQueryLength is the shortest folded query that triggers a scan.
const MinQueryLength = 2

// Matched field names reported on search results.
const (
	FieldName       = "name"
	FieldCollection = "collection"
	FieldCategory   = "categoryId"
	FieldSlug       = "slug"
	FieldTags       = "tags"
)

// Variants returns the folded query plus its singular/plural counterparts.
// The result is empty when the query is too short to search.
func Variants(query string) []string {
	folded := textutil.Fold(query)
	if utf8.RuneCountInString(folded) < MinQueryLength {
		return nil
	}
	variants := []string{folded}
	if strings.HasSuffix(folded, "s") {
		if singular := strings.TrimSuffix(folded, "s"); utf8.RuneCountInString(singular) >= MinQueryLength {
			variants = append(variants, singular)
		}
	} else {
		variants = append(variants, folded+"s")
	}
	return variants
}

// Search returns items whose name, collection, category, slug or tags contain
// the query. When nothing contains it, items whose category equals the query
// word for word (ignoring "-", "_" and "/" separators) are returned instead,
// flagged as fallback hits. Candidate order is kept and
// maxResults <= 0 leaves the result uncapped.
func Search(query string, candidates []domain.CatalogItem, maxResults int) []domain.SearchResult {
	variants := Variants(query)
	if len(variants) == 0 {
		return nil
	}

	var results []domain.SearchResult
	for _, item := range candidates {
		if field, ok := matchField(item, variants); ok {
			results = append(results, domain.SearchResult{Item: item, MatchedField: field})
			if capped(results, maxResults) {
				return results
			}
		}
	}
	if len(results) > 0 {
		return results
	}

	fallback := Variants(categoryWords(query))
	for _, item := range candidates {
		category := textutil.Fold(categoryWords(item.CategoryID))
		for _, variant := range fallback {
			if category == variant {
				results = append(results, domain.SearchResult{Item: item, MatchedField: FieldCategory, Fallback: true})
				break
			}
		}
		if capped(results, maxResults) {
			return results
		}
	}
	return results
}

// SearchCategories matches categories by name, id or slug.
func SearchCategories(query string, categories []domain.Category, maxResults int) []domain.CategoryResult {
	variants := Variants(query)
	if len(variants) == 0 {
		return nil
	}

	var results []domain.CategoryResult
	for _, category := range categories {
		if containsAny(textutil.Fold(category.Name), variants) ||
			containsAny(textutil.Fold(category.ID), variants) ||
			containsAny(textutil.Fold(category.Slug), variants) {
			results = append(results, domain.CategoryResult{ID: category.ID, Name: category.Name, Slug: category.Slug})
			if maxResults > 0 && len(results) >= maxResults {
				break
			}
		}
	}
	return results
}

func matchField(item domain.CatalogItem, variants []string) (string, bool) {
	switch {
	case containsAny(textutil.Fold(item.Name), variants):
		return FieldName, true
	case containsAny(textutil.Fold(item.Collection), variants):
		return FieldCollection, true
	case containsAny(textutil.Fold(item.CategoryID), variants):
		return FieldCategory, true
	case containsAny(textutil.Fold(item.Slug), variants):
		return FieldSlug, true
	}
	for _, tag := range item.Tags {
		if containsAny(textutil.Fold(tag), variants) {
			return FieldTags, true
		}
	}
	return "", false
}

func containsAny(haystack string, variants []string) bool {
	if haystack == "" {
		return false
	}
	for _, variant := range variants {
		if strings.Contains(haystack, variant) {
			return true
		}
	}
	return false
}

func capped(results []domain.SearchResult, maxResults int) bool {
	return maxResults > 0 && len(results) >= maxResults
}

// categoryWords turns slug-style category ids into space separated words.
func categoryWords(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '/':
			return ' '
		default:
			return r
		}
	}, value)
}
