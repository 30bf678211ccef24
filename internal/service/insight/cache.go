package insight

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"finsight/internal/redis"
)

// Cache stores generated reports keyed by the hash of their input text.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

type memoEntry struct {
	key      string
	value    string
	storedAt time.Time
}

// MemoryCache is a mutex-guarded map with optional LRU capacity and TTL. The zero
// options keep every entry for the life of the process.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List // front is most recently used
	items    map[string]*list.Element
}

type MemoryOption func(*MemoryCache)

// WithCapacity bounds the number of entries; the least recently used is evicted.
func WithCapacity(n int) MemoryOption {
	return func(c *MemoryCache) { c.capacity = n }
}

// WithTTL expires entries older than d.
func WithTTL(d time.Duration) MemoryOption {
	return func(c *MemoryCache) { c.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		now:   time.Now,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*memoEntry)
	if c.ttl > 0 && c.now().Sub(entry.storedAt) >= c.ttl {
		c.removeLocked(elem)
		return "", false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*memoEntry)
		entry.value = value
		entry.storedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(&memoEntry{key: key, value: value, storedAt: c.now()})
	for c.capacity > 0 && c.order.Len() > c.capacity {
		c.removeLocked(c.order.Back())
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := c.order.Remove(elem).(*memoEntry)
	delete(c.items, entry.key)
}

// RedisCache shares reports between instances. Errors degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.logger.Warn("memo get from redis", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("memo set to redis", zap.String("key", key), zap.Error(err))
	}
}
