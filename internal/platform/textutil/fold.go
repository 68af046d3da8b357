package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns the comparison form of value: lowercased, stripped of combining
// diacritics, trimmed, with inner whitespace runs collapsed to a single space.
func Fold(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, value)
	if err != nil {
		stripped = value
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// FoldAll folds every value, dropping the ones that fold to the empty string.
func FoldAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, value := range values {
		if folded := Fold(value); folded != "" {
			result = append(result, folded)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// SplitList splits comma separated values, trims each part and drops blanks.
func SplitList(values ...string) []string {
	var result []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}
