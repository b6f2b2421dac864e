package cache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// NoExpiration keeps an item until it is deleted.
const NoExpiration = cache.NoExpiration

// DefaultExpiration uses the expiration the cache was created with.
const DefaultExpiration = cache.DefaultExpiration

type Cache interface {
	Set(key string, value interface{}, duration time.Duration)
	Get(key string) (interface{}, bool)
	Delete(key string)
	Flush()
}

type goCache struct {
	internal *cache.Cache
}

func NewCache(defaultExpiration, cleanupInterval time.Duration) Cache {
	return &goCache{
		internal: cache.New(defaultExpiration, cleanupInterval),
	}
}

func (c *goCache) Set(key string, value interface{}, duration time.Duration) {
	c.internal.Set(key, value, duration)
}

func (c *goCache) Get(key string) (interface{}, bool) {
	return c.internal.Get(key)
}

func (c *goCache) Delete(key string) {
	c.internal.Delete(key)
}

func (c *goCache) Flush() {
	c.internal.Flush()
}

func GetFromCache[T any](c Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	val, found := c.Get(key)
	if !found {
		return zero, false
	}
	typedVal, ok := val.(T)
	if !ok {
		return zero, false
	}
	return typedVal, true
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result for ttl. Errors are not cached.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if val, found := GetFromCache[T](c, key); found {
		return val, nil
	}
	val, err := load(ctx)
	if err != nil {
		return val, err
	}
	if c != nil {
		c.Set(key, val, ttl)
	}
	return val, nil
}
