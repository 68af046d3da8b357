package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultCapacity bounds the number of entries held in memory.
	DefaultCapacity = 512
	// DefaultTTL bounds how long an entry may be served.
	DefaultTTL = 5 * time.Minute
)

// Memory is an in-process LRU cache whose entries expire after a fixed TTL.
type Memory[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewMemory constructs a Memory cache. Non-positive arguments use the defaults.
func NewMemory[V any](capacity int, ttl time.Duration) *Memory[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory[V]{lru: expirable.NewLRU[string, V](capacity, nil, ttl)}
}

// Get returns the live entry for key.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	return m.lru.Get(key)
}

// Set stores value, evicting the least recently used entry when full.
func (m *Memory[V]) Set(_ context.Context, key string, value V) {
	m.lru.Add(key, value)
}

// Len reports the number of live entries.
func (m *Memory[V]) Len() int {
	return m.lru.Len()
}

// Ping always succeeds.
func (m *Memory[V]) Ping(context.Context) error {
	return nil
}
