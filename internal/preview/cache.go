package preview

import (
	"fmt"
	"time"
)

const defaultCacheSize = 32

func cacheKey(p string, modTime time.Time, size, offset int64) string {
	return fmt.Sprintf("%s|%d|%d|%d", p, modTime.UnixNano(), size, offset)
}

// cache keeps the most recently loaded sessions. Oldest entries are evicted
// first; a hit does not refresh an entry's age.
type cache struct {
	limit int
	items map[string]Session
	order []string
}

func newCache(n int) *cache {
	if n <= 0 {
		n = defaultCacheSize
	}
	return &cache{limit: n, items: make(map[string]Session, n)}
}

func (c *cache) get(key string) (Session, bool) {
	s, ok := c.items[key]
	return s, ok
}

func (c *cache) put(key string, s Session) {
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = s
	for len(c.order) > c.limit {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *cache) clear() {
	clear(c.items)
	c.order = c.order[:0]
}

func (c *cache) count() int { return len(c.items) }
