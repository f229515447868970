// Package redis implements the membership cache on top of Redis so that
// several gateways can share answers.
package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	tcache "github.com/openshift/authgate/pkg/cache"
)

// DefaultKeyPrefix namespaces all keys written by the cache.
const DefaultKeyPrefix = "authgate:membership:"

type cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// MinTTL is the shortest TTL Redis keeps as an expiry. Zero would keep
// entries forever.
const MinTTL = time.Millisecond

// New returns a Cacher storing entries in client with the given TTL, raised
// to MinTTL if shorter.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) tcache.Cacher {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to get value from redis")
	}
	return v, true, nil
}

func (c *cache) Set(ctx context.Context, key string, value []byte) error {
	return errors.Wrap(c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(), "failed to set value in redis")
}
