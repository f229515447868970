package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisCache(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   3,
	})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.FlushDB(ctx)

	c := New(client, "", 2*time.Minute)

	if _, ok, err := c.Get(ctx, "admins#alice"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%t err=%v", ok, err)
	}
	if err := c.Set(ctx, "admins#alice", []byte("true")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := c.Get(ctx, "admins#alice")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%t err=%v", ok, err)
	}
	if string(v) != "true" {
		t.Errorf("expected %q, got %q", "true", v)
	}

	ttl, err := client.TTL(ctx, DefaultKeyPrefix+"admins#alice").Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > 2*time.Minute {
		t.Errorf("expected TTL within 2m, got %v", ttl)
	}
}

func TestNewRaisesZeroTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	defer client.Close()

	for _, ttl := range []time.Duration{0, -time.Second, time.Microsecond} {
		if got := New(client, "", ttl).(*cache).ttl; got != MinTTL {
			t.Errorf("New with ttl %v: expected %v, got %v", ttl, MinTTL, got)
		}
	}
	if got := New(client, "", time.Minute).(*cache).ttl; got != time.Minute {
		t.Errorf("expected 1m, got %v", got)
	}
}
