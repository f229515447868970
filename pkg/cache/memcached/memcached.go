package memcached

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"

	tcache "github.com/openshift/authgate/pkg/cache"
)

// cache is a Cacher implemented on top of Memcached.
type cache struct {
	*memcache.Client
	expiration int32
}

// MaxTTL is the longest TTL Memcached takes as relative. Larger expirations
// are read as unix timestamps.
const MaxTTL = 30 * 24 * time.Hour

// New creates a new Cache from a list of Memcached servers. Entries expire
// ttl after they were set; Memcached only knows whole seconds, so ttl is
// rounded up and capped at MaxTTL.
func New(ttl time.Duration, timeout time.Duration, servers ...string) tcache.Cacher {
	c := memcache.New(servers...)
	if timeout > 0 {
		c.Timeout = timeout
	}
	return &cache{
		c,
		expiration(ttl),
	}
}

// expiration never returns 0, which Memcached takes as no expiry.
func expiration(ttl time.Duration) int32 {
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	secs := (ttl + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return int32(secs)
}

// Get returns a value from Memcached.
func (c *cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	i, err := c.Client.Get(hash(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "failed to get value from memcached")
	}

	return i.Value, true, nil
}

// Set sets a value in Memcached.
func (c *cache) Set(_ context.Context, key string, value []byte) error {
	i := memcache.Item{
		Key:        hash(key),
		Value:      value,
		Expiration: c.expiration,
	}
	return errors.Wrap(c.Client.Set(&i), "failed to set value in memcached")
}

// hash hashes the given key to ensure that it is less than 250 bytes and
// free of whitespace, as Memcached cannot handle either.
func hash(key string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
}
