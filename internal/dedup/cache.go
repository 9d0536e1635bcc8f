package dedup

import (
	"container/list"
	"sync"
	"time"
)

// Cache is the idempotency gate for the socket ingestion path, which has no
// durable unique-constraint backstop available at call time. It is a fixed
// capacity LRU keyed by event id with a per-entry TTL; eviction is O(1).
// The database unique constraints remain the source of truth; this only
// suppresses rapid duplicates.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List

	// now is swappable in tests
	now func() time.Time
}

type entry struct {
	key  string
	seen time.Time
}

func New(ttl time.Duration, capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// IsDuplicate reports whether an id was marked processed within the TTL
// window. Expired entries are treated as unseen and dropped.
func (c *Cache) IsDuplicate(eventID string, externalID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.seen(eventID) || (externalID != "" && c.seen(externalID))
}

// MarkProcessed records both identifiers of one processed event. Either may
// be empty; an empty external id is normal for a message still "sending".
func (c *Cache) MarkProcessed(eventID string, externalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mark(eventID)
	if externalID != "" {
		c.mark(externalID)
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) seen(key string) bool {
	elem, ok := c.entries[key]
	if !ok {
		return false
	}

	e := elem.Value.(*entry)
	if c.now().Sub(e.seen) > c.ttl {
		c.remove(elem)
		return false
	}

	return true
}

func (c *Cache) mark(key string) {
	if key == "" {
		return
	}

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*entry).seen = c.now()
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		c.remove(c.order.Back())
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, seen: c.now()})
}

func (c *Cache) remove(elem *list.Element) {
	if elem == nil {
		return
	}
	delete(c.entries, elem.Value.(*entry).key)
	c.order.Remove(elem)
}
