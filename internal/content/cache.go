package content

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheItem хранит значение вместе со временем истечения.
type cacheItem[V any] struct {
	data      V
	expiresAt time.Time
}

// ttlCache - LRU с истечением записей по времени.
type ttlCache[V any] struct {
	lru *lru.Cache[string, cacheItem[V]]
	ttl time.Duration
	now func() time.Time
}

func newTTLCache[V any](size int, ttl time.Duration, now func() time.Time) (*ttlCache[V], error) {
	l, err := lru.New[string, cacheItem[V]](size)
	if err != nil {
		return nil, err
	}
	return &ttlCache[V]{lru: l, ttl: ttl, now: now}, nil
}

func (c *ttlCache[V]) Set(key string, data V) {
	if c.ttl <= 0 {
		return
	}
	c.lru.Add(key, cacheItem[V]{data: data, expiresAt: c.now().Add(c.ttl)})
}

// Get возвращает значение, если оно есть и не истекло.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	var zero V
	item, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if !c.now().Before(item.expiresAt) {
		c.lru.Remove(key)
		return zero, false
	}
	return item.data, true
}

func (c *ttlCache[V]) Purge() {
	c.lru.Purge()
}
