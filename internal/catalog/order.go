package catalog

import (
	"fmt"
	"sort"

	domain "github.com/hanko-field/catalog/internal/domain"
	"github.com/hanko-field/catalog/internal/platform/pagination"
	"github.com/hanko-field/catalog/internal/platform/textutil"
)

// Sort returns a new slice ordered by key. The input slice is left untouched and
// equal items keep their relative order.
func Sort(items []domain.CatalogItem, key domain.SortKey) []domain.CatalogItem {
	if len(items) < 2 {
		sorted := make([]domain.CatalogItem, len(items))
		copy(sorted, items)
		return sorted
	}

	entries := make([]sortEntry, len(items))
	for i, item := range items {
		entries[i] = sortEntry{item: item, name: textutil.Fold(item.Name)}
	}

	var less func(a, b sortEntry) bool
	switch key {
	case domain.SortNewest:
		less = func(a, b sortEntry) bool {
			// Two defaulted timestamps carry no ordering information.
			if !a.item.CreatedAtReliable && !b.item.CreatedAtReliable {
				return false
			}
			if !a.item.CreatedAt.Equal(b.item.CreatedAt) {
				return a.item.CreatedAt.After(b.item.CreatedAt)
			}
			return a.name < b.name
		}
	case domain.SortPriceAsc, domain.SortPriceDesc:
		desc := key == domain.SortPriceDesc
		less = func(a, b sortEntry) bool {
			if cmp := a.item.EffectivePrice().Cmp(b.item.EffectivePrice()); cmp != 0 {
				if desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return a.name < b.name
		}
	case domain.SortPopularity:
		less = func(a, b sortEntry) bool {
			if a.item.Popularity != b.item.Popularity {
				return a.item.Popularity > b.item.Popularity
			}
			return a.name < b.name
		}
	default:
		less = func(a, b sortEntry) bool {
			return a.name < b.name
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})

	sorted := make([]domain.CatalogItem, len(entries))
	for i, entry := range entries {
		sorted[i] = entry.item
	}
	return sorted
}

type sortEntry struct {
	item domain.CatalogItem
	name string
}

// Paginate slices a sorted result. The cursor is an opaque offset token issued
// by a previous call; hasMore is true exactly when items remain past the page.
func Paginate(items []domain.CatalogItem, pageSize int, cursor string) ([]domain.CatalogItem, bool, string, error) {
	if pageSize <= 0 {
		return nil, false, "", fmt.Errorf("catalog: page size must be positive, got %d", pageSize)
	}
	offset, err := pagination.DecodeOffset(cursor)
	if err != nil {
		return nil, false, "", err
	}
	if offset >= len(items) {
		return []domain.CatalogItem{}, false, "", nil
	}

	end := offset + pageSize
	if end > len(items) {
		end = len(items)
	}
	page := make([]domain.CatalogItem, end-offset)
	copy(page, items[offset:end])

	hasMore := end < len(items)
	next := ""
	if hasMore {
		next = pagination.EncodeOffset(end)
	}
	return page, hasMore, next, nil
}
