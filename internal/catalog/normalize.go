// Package catalog holds the in-memory query engine: document normalization,
// predicate evaluation, text matching, ordering and pagination. Nothing in this
// package performs I/O.
package catalog

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/catalog/internal/domain"
)

// Historical field names seen in stored documents, in lookup priority order.
var (
	nameFields        = []string{"name", "title"}
	categoryFields    = []string{"categoryId", "category", "category_id"}
	collectionFields  = []string{"collection", "collectionName"}
	slugFields        = []string{"slug"}
	statusFields      = []string{"status"}
	styleFields       = []string{"styles", "style"}
	tagFields         = []string{"tags"}
	materialFields    = []string{"materials", "material"}
	vibeFields        = []string{"vibes", "vibe"}
	regularPriceField = []string{"priceRegular", "price", "regularPrice"}
	salePriceFields   = []string{"priceSale", "salePrice"}
	isNewFields       = []string{"isNew", "new"}
	popularityFields  = []string{"popularity", "salesCount"}
	createdAtFields   = []string{"createdAt", "created_at"}
)

// Normalizer converts raw documents into canonical catalog items. It never fails.
type Normalizer struct {
	now func() time.Time
}

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClock overrides the clock used for documents without a usable creation time.
func WithClock(clock func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if clock != nil {
			n.now = clock
		}
	}
}

// NewNormalizer constructs a Normalizer using the wall clock unless overridden.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Normalize maps one raw document to a CatalogItem. Missing or malformed fields
// fall back to documented defaults; the input map is never modified.
func (n *Normalizer) Normalize(raw domain.RawDocument) domain.CatalogItem {
	fields := raw.Fields

	item := domain.CatalogItem{
		ID:         strings.TrimSpace(raw.ID),
		Name:       firstString(fields, nameFields),
		CategoryID: firstString(fields, categoryFields),
		Collection: firstString(fields, collectionFields),
		Slug:       firstString(fields, slugFields),
		Status:     firstString(fields, statusFields),
		Styles:     tokenSet(first(fields, styleFields)),
		Tags:       tokenSet(first(fields, tagFields)),
		Materials:  tokenSet(first(fields, materialFields)),
		Vibes:      tokenSet(first(fields, vibeFields)),
		IsNew:      boolValue(first(fields, isNewFields)),
	}
	if item.ID == "" {
		item.ID = firstString(fields, []string{"id", "_id"})
	}
	if item.ID == "" {
		item.ID = contentID(fields)
	}
	if item.Name == "" {
		item.Name = domain.UntitledName
	}
	if item.CategoryID == "" {
		item.CategoryID = domain.UncategorizedID
	}

	item.PriceRegular, item.PriceSale = prices(fields)

	if popularity, ok := number(first(fields, popularityFields)); ok && popularity > 0 {
		item.Popularity = popularity
	}

	if created, ok := timestamp(first(fields, createdAtFields)); ok {
		item.CreatedAt = created.UTC()
		item.CreatedAtReliable = true
	} else {
		item.CreatedAt = n.now().UTC()
	}

	return item
}

// NormalizeAll normalizes a batch, preserving input order.
func (n *Normalizer) NormalizeAll(raws []domain.RawDocument) []domain.CatalogItem {
	items := make([]domain.CatalogItem, 0, len(raws))
	for _, raw := range raws {
		items = append(items, n.Normalize(raw))
	}
	return items
}

// NormalizeCategory maps a raw category document. The name falls back to the id.
func NormalizeCategory(raw domain.RawDocument) domain.Category {
	category := domain.Category{
		ID:   strings.TrimSpace(raw.ID),
		Name: firstString(raw.Fields, []string{"name", "title", "label"}),
		Slug: firstString(raw.Fields, slugFields),
	}
	if category.ID == "" {
		category.ID = firstString(raw.Fields, []string{"id", "_id"})
	}
	if category.Name == "" {
		category.Name = category.ID
	}
	return category
}

// Denormalize renders an item in the canonical stored document shape.
func Denormalize(item domain.CatalogItem) domain.RawDocument {
	fields := map[string]any{
		"name":         item.Name,
		"categoryId":   item.CategoryID,
		"collection":   item.Collection,
		"slug":         item.Slug,
		"styles":       []string(item.Styles),
		"tags":         []string(item.Tags),
		"materials":    []string(item.Materials),
		"vibes":        []string(item.Vibes),
		"priceRegular": item.PriceRegular.String(),
		"isNew":        item.IsNew,
		"popularity":   item.Popularity,
	}
	if item.Status != "" {
		fields["status"] = item.Status
	}
	if item.PriceSale != nil {
		fields["priceSale"] = item.PriceSale.String()
	}
	if item.CreatedAtReliable {
		fields["createdAt"] = item.CreatedAt
	}
	return domain.RawDocument{ID: item.ID, Fields: fields}
}

func first(fields map[string]any, keys []string) any {
	for _, key := range keys {
		if value, ok := fields[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func firstString(fields map[string]any, keys []string) string {
	for _, key := range keys {
		if value := scalarString(fields[key]); value != "" {
			return value
		}
	}
	return ""
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case int, int32, int64, float32, float64:
		return strings.TrimSpace(fmt.Sprint(v))
	default:
		return ""
	}
}

// tokenSet accepts a sequence, a keyed map or a comma separated string.
func tokenSet(value any) domain.TokenSet {
	var raw []string
	switch v := value.(type) {
	case nil:
		return domain.TokenSet{}
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		raw = make([]string, 0, len(v))
		for _, element := range v {
			raw = append(raw, scalarString(element))
		}
	case map[string]any:
		raw = mapTokens(v)
	case map[string]bool:
		converted := make(map[string]any, len(v))
		for key, flag := range v {
			converted[key] = flag
		}
		raw = mapTokens(converted)
	case map[string]string:
		converted := make(map[string]any, len(v))
		for key, token := range v {
			converted[key] = token
		}
		raw = mapTokens(converted)
	default:
		raw = []string{scalarString(v)}
	}

	set := make(domain.TokenSet, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		key := strings.ToLower(token)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		set = append(set, token)
	}
	return set
}

// mapTokens flattens a keyed map. Boolean values select their key; any other
// value contributes itself.
func mapTokens(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sortNatural(keys)

	tokens := make([]string, 0, len(m))
	for _, key := range keys {
		switch v := m[key].(type) {
		case bool:
			if v {
				tokens = append(tokens, key)
			}
		case nil:
		default:
			tokens = append(tokens, scalarString(v))
		}
	}
	return tokens
}

// sortNatural orders numeric keys numerically ahead of the rest, so index-keyed
// maps keep their array order.
func sortNatural(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, aErr := strconv.Atoi(keys[i])
		b, bErr := strconv.Atoi(keys[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}

func boolValue(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	default:
		if n, ok := number(v); ok {
			return n != 0
		}
		return false
	}
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return finite(float64(v))
	case float64:
		return finite(v)
	case decimal.Decimal:
		f, _ := v.Float64()
		return f, true
	case string:
		d, ok := decimalValue(v)
		if !ok {
			return 0, false
		}
		f, _ := d.Float64()
		return f, true
	default:
		return 0, false
	}
}

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// contentID derives a stable id for documents stored without one. fmt prints
// map keys in sorted order, so equal contents always hash alike.
func contentID(fields map[string]any) string {
	h := fnv.New64a()
	_, _ = fmt.Fprint(h, fields)
	return fmt.Sprintf("doc-%016x", h.Sum64())
}

func decimalValue(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.Zero, false
		}
		if !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case fmt.Stringer:
		return decimalValue(v.String())
	default:
		f, ok := number(v)
		if !ok {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(f), true
	}
}

// prices reads flat and nested price shapes. The regular price is never negative
// and the sale price is nil unless a non-negative value is present.
func prices(fields map[string]any) (decimal.Decimal, *decimal.Decimal) {
	regularRaw := first(fields, regularPriceField)
	saleRaw := first(fields, salePriceFields)

	if nested, ok := regularRaw.(map[string]any); ok {
		regularRaw = first(nested, []string{"regular", "amount", "value"})
		if saleRaw == nil {
			saleRaw = first(nested, []string{"sale"})
		}
	}

	regular, ok := decimalValue(regularRaw)
	if !ok || regular.IsNegative() {
		regular = decimal.Zero
	}

	var sale *decimal.Decimal
	if value, ok := decimalValue(saleRaw); ok && !value.IsNegative() {
		sale = &value
	}
	return regular, sale
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	case map[string]any:
		seconds, ok := number(first(v, []string{"seconds", "_seconds"}))
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := number(first(v, []string{"nanoseconds", "_nanoseconds", "nanos"}))
		return time.Unix(int64(seconds), int64(nanos)), true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case int, int32, int64, float32, float64:
		seconds, ok := number(v)
		if !ok || seconds <= 0 {
			return time.Time{}, false
		}
		return time.Unix(int64(seconds), 0), true
	default:
		return time.Time{}, false
	}
}
