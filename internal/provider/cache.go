package provider

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"focusaura/internal/domain"
)

// Cache holds recent live successes keyed by role and query text.
type Cache struct {
	lru *expirable.LRU[string, Extracted]
}

// NewCache returns a TTL-bounded LRU cache holding at most size entries.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, Extracted](size, nil, ttl)}
}

func cacheKey(role domain.ProviderRole, query string) string {
	return string(role) + "\x00" + query
}

func (c *Cache) get(role domain.ProviderRole, query string) (Extracted, bool) {
	if c == nil {
		return Extracted{}, false
	}
	return c.lru.Get(cacheKey(role, query))
}

func (c *Cache) put(role domain.ProviderRole, query string, v Extracted) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey(role, query), v)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
