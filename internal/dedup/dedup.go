// Package dedup provides a bounded LRU of xxhash content digests, adapted
// from the teacher's pkg/deduplication.DeduplicationManager (which
// dedupes log lines for a Kafka/Loki sink) into whole-file content
// digests for the file-queue daemon. At-least-once is the model
// (spec.md §1 Non-goals), so a detected repeat is observability only —
// it is still processed — never a skip.
package dedup

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Cache is a fixed-capacity LRU of content digests.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[uint64]*list.Element
}

// New builds a Cache holding up to capacity digests.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uint64]*list.Element),
	}
}

// Digest returns the xxhash64 digest of content.
func Digest(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// Seen reports whether digest was already recorded, then records it
// (marking it most-recently-used either way).
func (c *Cache) Seen(digest uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[digest]; ok {
		c.order.MoveToFront(el)
		return true
	}

	el := c.order.PushFront(digest)
	c.index[digest] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(uint64))
		}
	}
	return false
}

// Len reports the number of digests currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
