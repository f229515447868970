package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

type entry struct {
	value   []byte
	expires time.Time
}

// lruCache is a bounded in-memory Cacher. Entries expire ttl after they were
// set, regardless of how often they are read. When full, the least recently
// used entry is evicted.
type lruCache struct {
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	now     func() time.Time
}

// NewLRU creates an in-memory Cacher holding at most size entries.
// now is used to expire entries; nil means time.Now.
func NewLRU(size int, ttl time.Duration, now func() time.Time) (Cacher, error) {
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LRU cache")
	}
	if now == nil {
		now = time.Now
	}
	return &lruCache{entries: entries, ttl: ttl, now: now}, nil
}

func (c *lruCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := c.entries.Peek(key)
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	// Get only to mark the entry as recently used.
	c.entries.Get(key)
	return e.value, true, nil
}

func (c *lruCache) Set(_ context.Context, key string, value []byte) error {
	c.entries.Add(key, entry{value: value, expires: c.now().Add(c.ttl)})
	return nil
}
