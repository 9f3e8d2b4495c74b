// Package cache provides the bounded least-recently-used cache that holds
// decoded call-graph shards between queries.
//
// Entries carry no dirty state: an evicted value is simply dropped and must be
// re-derivable by the caller (for shards, by decoding the file again).
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

// LRU is a fixed-capacity cache that evicts the least recently used entry
// when an insertion would exceed capacity. A Get hit moves the entry to the
// most-recently-used position. Safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most recent, back = least recent

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRU returns an empty cache holding at most capacity entries.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the value stored under key and promotes it to most recently
// used. The hit or miss counter is incremented accordingly.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Peek returns the value under key without promoting it or touching the
// counters.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		return elem.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key. Updating an existing key promotes it. Inserting
// a new key into a full cache first evicts the least recently used entry;
// the return value reports whether that happened.
func (c *LRU[K, V]) Put(key K, value V) (evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return false
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
			c.evictions.Add(1)
			evicted = true
		}
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	return evicted
}

// Delete drops key from the cache. It reports whether the key was present.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
		return true
	}
	return false
}

// Purge drops every entry. Counters are kept.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the maximum number of entries.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Keys returns the cached keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*entry[K, V]).key)
	}
	return keys
}

// Stats returns the hit and miss counters.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Evictions returns how many entries were dropped for capacity.
func (c *LRU[K, V]) Evictions() int64 {
	return c.evictions.Load()
}

// remove unlinks elem from the list and the index. Caller holds mu.
func (c *LRU[K, V]) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}
