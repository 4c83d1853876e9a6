package tautan

import (
	"container/list"
	"sync"
	"time"
)

// Cache stores normalized response envelopes by key.
type Cache interface {
	Get(key string) (*Envelope, bool)
	Set(key string, value *Envelope, ttl time.Duration)
	Delete(key string)
	Clear()
	Len() int
}

// CacheEntry is a stored envelope with its time-to-live.
type CacheEntry struct {
	Key      string
	Value    *Envelope
	StoredAt time.Time
	TTL      time.Duration
}

func (e *CacheEntry) expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// FIFOCache is a bounded in-memory cache with per-entry TTL. When full, the
// earliest inserted key is evicted; reads do not affect eviction order.
type FIFOCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List
	now        func() time.Time
}

// NewFIFOCache creates a cache holding at most maxEntries entries.
// A non-positive maxEntries disables the bound.
func NewFIFOCache(maxEntries int) *FIFOCache {
	return &FIFOCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the value for key. Expired entries are removed and reported absent.
func (c *FIFOCache) Get(key string) (*Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	entry := elem.Value.(*CacheEntry)
	if entry.expired(c.now()) {
		c.removeElement(elem)
		return nil, false
	}

	return entry.Value, true
}

// Set stores value under key for ttl. Overwriting a key keeps its queue position.
func (c *FIFOCache) Set(key string, value *Envelope, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, exists := c.entries[key]; exists {
		entry := elem.Value.(*CacheEntry)
		entry.Value = value
		entry.StoredAt = now
		entry.TTL = ttl
		return
	}

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	elem := c.order.PushBack(&CacheEntry{
		Key:      key,
		Value:    value,
		StoredAt: now,
		TTL:      ttl,
	})
	c.entries[key] = elem
}

// Delete removes a cache entry
func (c *FIFOCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		c.removeElement(elem)
	}
}

// Clear removes all cache entries
func (c *FIFOCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len reports the number of stored entries, including ones not yet lazily expired.
func (c *FIFOCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Keys returns stored keys in insertion order.
func (c *FIFOCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*CacheEntry).Key)
	}
	return keys
}

func (c *FIFOCache) removeElement(elem *list.Element) {
	entry := c.order.Remove(elem).(*CacheEntry)
	delete(c.entries, entry.Key)
}
