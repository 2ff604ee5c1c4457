package blobcache

import (
	"container/list"
	"context"
	"sync"
)

// MemoryCache is an LRU bounded by the total bytes it holds.
type MemoryCache struct {
	mu       sync.Mutex
	maxBytes int64
	size     int64
	order    *list.List
	entries  map[string]*list.Element
}

type entry struct {
	key  string
	data []byte
}

// NewMemoryCache creates a cache holding at most maxBytes.
func NewMemoryCache(maxBytes int64) *MemoryCache {
	return &MemoryCache{
		maxBytes: maxBytes,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns a copy of the cached bytes and marks the entry as recently used.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	c.order.MoveToFront(el)
	return append([]byte(nil), el.Value.(*entry).data...), true, nil
}

// Put stores a copy of data, evicting least recently used entries to stay
// under the byte bound. Blobs larger than the bound are not cached.
func (c *MemoryCache) Put(ctx context.Context, key string, data []byte) error {
	size := int64(len(data))
	if size > c.maxBytes {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}

	el := c.order.PushFront(&entry{key: key, data: append([]byte(nil), data...)})
	c.entries[key] = el
	c.size += size

	for c.size > c.maxBytes {
		c.removeElement(c.order.Back())
	}
	return nil
}

// Size returns the bytes currently held.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *MemoryCache) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.entries, e.key)
	c.size -= int64(len(e.data))
}
