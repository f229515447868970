package cache

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Cacher is able to get and set key value pairs.
// Implementations expire entries on their own and are safe for concurrent use.
type Cacher interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// instrumented is a Cacher that counts reads and writes of the wrapped Cacher.
type instrumented struct {
	c Cacher

	// Metrics.
	cacheReadsTotal  *prometheus.CounterVec
	cacheWritesTotal *prometheus.CounterVec
}

// NewInstrumented wraps c with read and write counters registered on reg.
// A nil reg leaves the counters unregistered.
func NewInstrumented(c Cacher, reg prometheus.Registerer) Cacher {
	i := &instrumented{
		c: c,
		cacheReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_reads_total",
				Help: "The number of read requests made to the cache.",
			}, []string{"result"},
		),
		cacheWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_writes_total",
				Help: "The number of write requests made to the cache.",
			}, []string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(i.cacheReadsTotal, i.cacheWritesTotal)
	}

	return i
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := i.c.Get(ctx, key)
	switch {
	case err != nil:
		i.cacheReadsTotal.WithLabelValues("error").Inc()
	case ok:
		i.cacheReadsTotal.WithLabelValues("hit").Inc()
	default:
		i.cacheReadsTotal.WithLabelValues("miss").Inc()
	}
	return raw, ok, err
}

func (i *instrumented) Set(ctx context.Context, key string, value []byte) error {
	if err := i.c.Set(ctx, key, value); err != nil {
		i.cacheWritesTotal.WithLabelValues("error").Inc()
		return err
	}
	i.cacheWritesTotal.WithLabelValues("success").Inc()
	return nil
}
