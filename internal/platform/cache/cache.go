// Package cache provides the short-lived result caches that sit in front of
// catalog scans. Every backend treats failures as misses.
package cache

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

var partEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`)

// Cache stores computed values under normalized keys. Implementations must be
// safe for concurrent use; concurrent writers to the same key resolve as last
// writer wins.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V)
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Noop never stores anything.
type Noop[V any] struct{}

// Get always misses.
func (Noop[V]) Get(context.Context, string) (V, bool) {
	var zero V
	return zero, false
}

// Set discards the value.
func (Noop[V]) Set(context.Context, string, V) {}

// Key joins a namespace and signature parts into a cache key. Parts must already
// be normalized by the caller; separators inside a part are escaped so distinct
// part lists never share a key.
func Key(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, part := range parts {
		b.WriteByte('|')
		b.WriteString(partEscaper.Replace(part))
	}
	return b.String()
}

// SetKey renders a token set independent of input order and duplicates. Each
// token is quoted, so ["a","b"] and ["a,b"] render differently.
func SetKey(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		unique[token] = struct{}{}
	}
	sorted := make([]string, 0, len(unique))
	for token := range unique {
		sorted = append(sorted, token)
	}
	sort.Strings(sorted)
	for i, token := range sorted {
		sorted[i] = strconv.Quote(token)
	}
	return strings.Join(sorted, ",")
}
