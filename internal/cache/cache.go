// Package cache implements the result cache keyed by (normalized_query,
// filters, use_reranker) with TTL and LRU eviction. It prefers Redis and
// falls back to an in-process map when Redis is unavailable, the same
// degrade-gracefully pattern as the teacher's cache service.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "ipassist:result:"

// Key builds the deterministic cache key for a normalized query, filter
// set, and reranker flag.
func Key(normalizedQuery string, filters any, useReranker bool) string {
	payload, _ := json.Marshal(struct {
		Query    string `json:"query"`
		Filters  any    `json:"filters"`
		Reranker bool   `json:"reranker"`
	}{normalizedQuery, filters, useReranker})
	sum := sha256.Sum256(payload)
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Cache is a TTL+LRU result cache, Redis-backed when available.
type Cache struct {
	redis    *redis.Client
	ttl      time.Duration
	maxItems int

	mu      sync.Mutex
	mem     map[string]*list.Element
	order   *list.List // front = most recently used
	log     zerolog.Logger
}

type entry struct {
	key       string
	data      []byte
	expiresAt time.Time
}

// Config configures a Cache.
type Config struct {
	TTLSeconds int
	MaxItems   int
}

// New constructs a result cache. redisClient may be nil, in which case the
// cache runs purely in-process.
func New(redisClient *redis.Client, cfg Config, log zerolog.Logger) *Cache {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 256
	}
	return &Cache{
		redis:    redisClient,
		ttl:      ttl,
		maxItems: maxItems,
		mem:      make(map[string]*list.Element),
		order:    list.New(),
		log:      log,
	}
}

// Get looks up raw bytes for key, trying Redis first when configured.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			return val, true
		}
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("cache: redis get failed, falling back to memory")
		}
	}
	return c.getMem(key)
}

// Set stores raw bytes for key with the cache's configured TTL.
func (c *Cache) Set(ctx context.Context, key string, data []byte) {
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err == nil {
			return
		}
		c.log.Warn().Msg("cache: redis set failed, falling back to memory")
	}
	c.setMem(key, data)
}

func (c *Cache) getMem(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.mem[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.order.Remove(el)
		delete(c.mem, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.data, true
}

func (c *Cache) setMem(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.mem[key]; ok {
		el.Value.(*entry).data = data
		el.Value.(*entry).expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: key, data: data, expiresAt: time.Now().Add(c.ttl)})
	c.mem[key] = el

	for c.order.Len() > c.maxItems {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.mem, back.Value.(*entry).key)
	}
}
