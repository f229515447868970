package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLRUExpiresAfterInsertion(t *testing.T) {
	var (
		ctx = context.Background()
		now = time.Time{}.Add(time.Hour)
	)

	c, err := NewLRU(10, 2*time.Minute, func() time.Time { return now })
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "admins#alice", []byte("true")); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name    string
		advance time.Duration
		found   bool
	}{
		{name: "immediate read hits", advance: 0, found: true},
		{name: "read after 1 minute hits", advance: time.Minute, found: true},
		{name: "read just before expiry hits", advance: time.Minute - time.Second, found: true},
		{name: "read at expiry misses", advance: time.Second, found: false},
		{name: "read after expiry misses", advance: time.Minute, found: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			now = now.Add(tc.advance)

			v, ok, err := c.Get(ctx, "admins#alice")
			if err != nil {
				t.Fatal(err)
			}
			if ok != tc.found {
				t.Fatalf("expected found %t, got %t", tc.found, ok)
			}
			if ok && string(v) != "true" {
				t.Errorf("expected value %q, got %q", "true", v)
			}
		})
	}
}

func TestLRUReadsDoNotExtendTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Time{}
	c, err := NewLRU(10, time.Minute, func() time.Time { return now })
	if err != nil {
		t.Fatal(err)
	}
	_ = c.Set(ctx, "k", []byte("v"))

	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Second)
		if _, ok, _ := c.Get(ctx, "k"); !ok {
			t.Fatalf("expected hit after %v", time.Duration(i+1)*10*time.Second)
		}
	}

	now = now.Add(10 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expected entry to expire one TTL after insertion")
	}
}

func TestLRUEvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(2, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}

	_ = c.Set(ctx, "a", []byte("1"))
	_ = c.Set(ctx, "b", []byte("2"))
	// Touch a so that b is the least recently used.
	_, _, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "c", []byte("3"))

	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok, _ := c.Get(ctx, k); !ok {
			t.Errorf("expected %s to be cached", k)
		}
	}
}

func TestLRUDropsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Time{}
	c, err := NewLRU(2, time.Minute, func() time.Time { return now })
	if err != nil {
		t.Fatal(err)
	}

	_ = c.Set(ctx, "stale", []byte("1"))
	now = now.Add(30 * time.Second)
	_ = c.Set(ctx, "fresh", []byte("2"))
	now = now.Add(45 * time.Second)

	if _, ok, _ := c.Get(ctx, "stale"); ok {
		t.Fatal("expected stale to be expired")
	}
	if n := c.(*lruCache).entries.Len(); n != 1 {
		t.Fatalf("expected the expired entry to be removed, %d entries left", n)
	}

	// The freed slot is used before fresh is evicted.
	_ = c.Set(ctx, "new", []byte("3"))
	for _, k := range []string{"fresh", "new"} {
		if _, ok, _ := c.Get(ctx, k); !ok {
			t.Errorf("expected %s to be cached", k)
		}
	}
}

func TestNewLRUInvalidSize(t *testing.T) {
	if _, err := NewLRU(0, time.Minute, nil); err == nil {
		t.Error("expected error for zero size")
	}
}

type failingCacher struct{ err error }

func (f failingCacher) Get(context.Context, string) ([]byte, bool, error) { return nil, false, f.err }
func (f failingCacher) Set(context.Context, string, []byte) error        { return f.err }

func TestInstrumented(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	lru, err := NewLRU(10, time.Minute, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := NewInstrumented(lru, reg).(*instrumented)

	_, _, _ = c.Get(ctx, "missing")
	_ = c.Set(ctx, "present", []byte("true"))
	_, _, _ = c.Get(ctx, "present")
	_, _, _ = c.Get(ctx, "present")

	if got := testutil.ToFloat64(c.cacheReadsTotal.WithLabelValues("miss")); got != 1 {
		t.Errorf("expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(c.cacheReadsTotal.WithLabelValues("hit")); got != 2 {
		t.Errorf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(c.cacheWritesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("expected 1 successful write, got %v", got)
	}

	boom := errors.New("boom")
	f := NewInstrumented(failingCacher{err: boom}, nil).(*instrumented)
	if _, _, err := f.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("expected error %v, got %v", boom, err)
	}
	if err := f.Set(ctx, "k", nil); !errors.Is(err, boom) {
		t.Errorf("expected error %v, got %v", boom, err)
	}
	if got := testutil.ToFloat64(f.cacheReadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 read error, got %v", got)
	}
	if got := testutil.ToFloat64(f.cacheWritesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 write error, got %v", got)
	}
}
