// Package cache provides the in-process caches used by the pipeline. Caches
// are injected rather than global so tests can control time and eviction.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Cache is a keyed store with optional expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Len() int
}

// EvictionPolicy decides which key to drop when a bounded cache is full.
type EvictionPolicy[K comparable] interface {
	// Touched is called on every Get hit and Set.
	Touched(key K)
	// Removed is called when a key leaves the cache.
	Removed(key K)
	// Victim returns the key to evict next.
	Victim() (K, bool)
}

// LRU evicts the least recently used key.
type LRU[K comparable] struct {
	order *list.List
	index map[K]*list.Element
}

// NewLRU creates an LRU eviction policy.
func NewLRU[K comparable]() *LRU[K] {
	return &LRU[K]{order: list.New(), index: make(map[K]*list.Element)}
}

func (l *LRU[K]) Touched(key K) {
	if el, ok := l.index[key]; ok {
		l.order.MoveToFront(el)
		return
	}
	l.index[key] = l.order.PushFront(key)
}

func (l *LRU[K]) Removed(key K) {
	if el, ok := l.index[key]; ok {
		l.order.Remove(el)
		delete(l.index, key)
	}
}

func (l *LRU[K]) Victim() (K, bool) {
	el := l.order.Back()
	if el == nil {
		var zero K
		return zero, false
	}
	return el.Value.(K), true
}

// Options configures a TTL cache.
type Options[K comparable] struct {
	TTL        time.Duration // zero disables expiry
	MaxEntries int           // zero means unbounded
	Clock      Clock
	Policy     EvictionPolicy[K] // defaults to LRU when MaxEntries > 0
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a mutex-guarded map with optional TTL and size bound.
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]entry[V]
	ttl     time.Duration
	max     int
	clock   Clock
	policy  EvictionPolicy[K]
	hits    uint64
	misses  uint64
	evicted uint64
}

// New creates a TTLCache.
func New[K comparable, V any](opts Options[K]) *TTLCache[K, V] {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Policy == nil && opts.MaxEntries > 0 {
		opts.Policy = NewLRU[K]()
	}
	return &TTLCache[K, V]{
		items:  make(map[K]entry[V]),
		ttl:    opts.TTL,
		max:    opts.MaxEntries,
		clock:  opts.Clock,
		policy: opts.Policy,
	}
}

// Get returns the value for key if present and not expired. Expired entries
// are removed on access.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	if c.ttl > 0 && !c.clock.Now().Before(e.expiresAt) {
		c.removeLocked(key)
		c.misses++
		var zero V
		return zero, false
	}
	if c.policy != nil {
		c.policy.Touched(key)
	}
	c.hits++
	return e.value, true
}

// Set stores value under key, resetting its TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expiresAt = c.clock.Now().Add(c.ttl)
	}
	_, exists := c.items[key]
	c.items[key] = e
	if c.policy != nil {
		c.policy.Touched(key)
	}
	if !exists && c.max > 0 {
		for len(c.items) > c.max {
			victim, ok := c.policy.Victim()
			if !ok {
				break
			}
			c.removeLocked(victim)
			c.evicted++
		}
	}
}

// Delete removes key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Len returns the number of stored entries, expired ones included until
// they are touched.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats reports hit, miss and eviction counts.
func (c *TTLCache[K, V]) Stats() (hits, misses, evicted uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evicted
}

func (c *TTLCache[K, V]) removeLocked(key K) {
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	if c.policy != nil {
		c.policy.Removed(key)
	}
}
