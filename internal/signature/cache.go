package signature

import (
	"container/list"
	"sync"
)

// defaultCacheCapacity bounds the memo cache. Signatures are cheap to
// recompute relative to network I/O, so a small cache is enough.
const defaultCacheCapacity = 256

// identityCache memoizes signatures keyed by the identity of the underlying
// map, standing in for the weak-reference cache a garbage-collected host
// would use. Eviction is manual: least recently used entries drop first once
// capacity is reached.
type identityCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[uintptr]*list.Element
}

type cacheEntry struct {
	key uintptr
	sig string
}

func newIdentityCache(capacity int) *identityCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &identityCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[uintptr]*list.Element),
	}
}

func (c *identityCache) get(key uintptr) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(cacheEntry).sig, true
}

func (c *identityCache) put(key uintptr, sig string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value = cacheEntry{key: key, sig: sig}
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(cacheEntry{key: key, sig: sig})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(cacheEntry).key)
	}
}

func (c *identityCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
