package snapshot

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
)

// Cache holds built snapshots per stream. Writers invalidate rather than
// update, so a concurrent rebuild can at worst serve a snapshot that is one
// write stale until the next invalidation.
type Cache interface {
	Get(ctx context.Context, stream Stream) ([]domain.Assessment, bool, error)
	Put(ctx context.Context, stream Stream, records []domain.Assessment) error
	Invalidate(ctx context.Context, stream Stream) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, Stream) ([]domain.Assessment, bool, error) {
	return nil, false, nil
}
func (NopCache) Put(context.Context, Stream, []domain.Assessment) error { return nil }
func (NopCache) Invalidate(context.Context, Stream) error             { return nil }

// MemoryCache is an in-process TTL cache bounded by an LRU.
type MemoryCache struct {
	ttl   time.Duration
	clock clockwork.Clock
	lru   *lruCache
}

// NewMemoryCache creates a cache whose entries expire after ttl. A nil clock
// uses real time.
func NewMemoryCache(ttl time.Duration, maxEntries int, clock clockwork.Clock) *MemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCache{ttl: ttl, clock: clock, lru: newLRUCache(maxEntries)}
}

func (c *MemoryCache) Get(_ context.Context, stream Stream) ([]domain.Assessment, bool, error) {
	v, ok := c.lru.get(stream)
	if !ok {
		return nil, false, nil
	}
	if !c.clock.Now().Before(v.expires) {
		c.lru.delete(stream)
		return nil, false, nil
	}
	return slices.Clone(v.records), true, nil
}

func (c *MemoryCache) Put(_ context.Context, stream Stream, records []domain.Assessment) error {
	c.lru.put(stream, cached{records: slices.Clone(records), expires: c.clock.Now().Add(c.ttl)})
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, stream Stream) error {
	c.lru.delete(stream)
	return nil
}

type cached struct {
	records []domain.Assessment
	expires time.Time
}

// lruCache is a thread-safe LRU of cached snapshots.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[Stream]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   Stream
	value cached
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[Stream]*entry),
	}
}

func (c *lruCache) get(key Stream) (cached, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return cached{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key Stream, value cached) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) delete(key Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.remove(e)
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
