// Package cache provides the bounded write-through record cache used by the
// persistence layer to avoid redundant adapter reads. Entries expire by TTL
// and are evicted LRU-first once capacity is reached; any successful write
// invalidates the affected entries before the write returns.
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/N3z3d/prioris-sync/internal/domain"
	"github.com/N3z3d/prioris-sync/internal/observability"
)

const (
	// DefaultTTL is how long an entry stays valid after its last access.
	DefaultTTL = 15 * time.Minute

	// DefaultCapacity bounds the number of entries before LRU eviction.
	DefaultCapacity = 1000
)

// Config tunes the cache. Zero values fall back to the defaults.
type Config struct {
	TTL      time.Duration
	Capacity int
	Clock    func() time.Time
}

// entry is a cached record: either a list or a list's item collection.
type entry struct {
	key        string
	listRecord *domain.List
	items      []*domain.Item
	isItems    bool
	lastAccess time.Time
	element    *list.Element
}

// RecordCache caches lists by id and item collections by owning list id.
// Eviction bookkeeping is serialized behind a single mutex; the cache is
// shared by all workers.
type RecordCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recently used

	ttl      time.Duration
	capacity int
	now      func() time.Time

	logger *zap.Logger
	sink   observability.MetricsSink
}

// New creates a cache. A nil logger becomes a no-op logger; a nil sink
// discards samples.
func New(cfg Config, logger *zap.Logger, sink observability.MetricsSink) *RecordCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordCache{
		entries:  make(map[string]*entry),
		lru:      list.New(),
		ttl:      cfg.TTL,
		capacity: cfg.Capacity,
		now:      cfg.Clock,
		logger:   logger.Named("cache"),
		sink:     observability.OrNop(sink),
	}
}

const itemsKeyPrefix = "items:"

// GetList returns the cached list for id, if present and unexpired.
func (c *RecordCache) GetList(id string) (*domain.List, bool) {
	e, ok := c.lookup(id)
	if !ok || e.isItems {
		return nil, false
	}
	return e.listRecord.Clone(), true
}

// PutList caches a list after a successful read or write-through.
func (c *RecordCache) PutList(l *domain.List) {
	c.put(l.ID, &entry{key: l.ID, listRecord: l.Clone()})
}

// GetItems returns the cached item collection for a list id.
func (c *RecordCache) GetItems(listID string) ([]*domain.Item, bool) {
	e, ok := c.lookup(itemsKeyPrefix + listID)
	if !ok || !e.isItems {
		return nil, false
	}
	out := make([]*domain.Item, len(e.items))
	for i, item := range e.items {
		out[i] = item.Clone()
	}
	return out, true
}

// PutItems caches a list's item collection.
func (c *RecordCache) PutItems(listID string, items []*domain.Item) {
	copied := make([]*domain.Item, len(items))
	for i, item := range items {
		copied[i] = item.Clone()
	}
	key := itemsKeyPrefix + listID
	c.put(key, &entry{key: key, items: copied, isItems: true})
}

// Invalidate drops the entry for a record id and, for lists, the children
// collection cached under it. Called before any successful write returns so
// stale reads cannot race the write.
func (c *RecordCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
	c.removeLocked(itemsKeyPrefix + id)
}

// InvalidateAll empties the cache.
func (c *RecordCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.lru.Init()
}

// Len reports the current entry count.
func (c *RecordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *RecordCache) lookup(key string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.sink.Add(observability.MetricCacheMisses, 1)
		return nil, false
	}
	if c.now().Sub(e.lastAccess) > c.ttl {
		c.removeLocked(key)
		c.sink.Add(observability.MetricCacheMisses, 1)
		return nil, false
	}
	e.lastAccess = c.now()
	c.lru.MoveToFront(e.element)
	c.sink.Add(observability.MetricCacheHits, 1)
	return e, true
}

func (c *RecordCache) put(key string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(key)
	e.lastAccess = c.now()
	e.element = c.lru.PushFront(e)
	c.entries[key] = e

	for len(c.entries) > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*entry)
		c.removeLocked(victim.key)
		c.sink.Add(observability.MetricCacheEvictions, 1)
		c.logger.Debug("evicted cache entry",
			zap.String("key", victim.key),
			zap.Int("size", len(c.entries)),
		)
	}
}

func (c *RecordCache) removeLocked(key string) {
	if e, ok := c.entries[key]; ok {
		c.lru.Remove(e.element)
		delete(c.entries, key)
	}
}
