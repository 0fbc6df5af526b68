package store

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors for a single Store instance,
// together with plain atomic counters used to answer Snapshot() without
// reaching into Prometheus internals. Collectors are created with
// prometheus.New* (not promauto) so constructing more than one Store, as
// the tests do, never triggers a duplicate-registration panic; the caller
// opts in to exposition by calling RegisterMetrics once.
type metrics struct {
	hits      counterWithAtomic
	misses    counterWithAtomic
	sets      counterWithAtomic
	deletes   counterWithAtomic
	evictions counterWithAtomic
	usedBytes prometheus.Gauge
	items     prometheus.Gauge
}

// counterWithAtomic pairs a Prometheus counter with an atomic int64 so
// Snapshot() can report an exact count cheaply.
type counterWithAtomic struct {
	c prometheus.Counter
	n *int64
}

func newCounterWithAtomic(name, help string) counterWithAtomic {
	return counterWithAtomic{
		c: prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help}),
		n: new(int64),
	}
}

func (c counterWithAtomic) Inc() {
	c.c.Inc()
	atomic.AddInt64(c.n, 1)
}

func (c counterWithAtomic) count() int64 {
	return atomic.LoadInt64(c.n)
}

func newMetrics() *metrics {
	return &metrics{
		hits:      newCounterWithAtomic("linecached_store_hits_total", "Cache get hits."),
		misses:    newCounterWithAtomic("linecached_store_misses_total", "Cache get misses."),
		sets:      newCounterWithAtomic("linecached_store_sets_total", "Successful put/put_if_absent/set operations."),
		deletes:   newCounterWithAtomic("linecached_store_deletes_total", "Successful deletes."),
		evictions: newCounterWithAtomic("linecached_store_evictions_total", "Entries evicted to make room."),
		usedBytes: prometheus.NewGauge(prometheus.GaugeOpts{Name: "linecached_store_used_bytes", Help: "Bytes currently retained by the store."}),
		items:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "linecached_store_items", Help: "Number of entries currently stored."}),
	}
}

func (m *metrics) hitCount() int64      { return m.hits.count() }
func (m *metrics) missCount() int64     { return m.misses.count() }
func (m *metrics) setCount() int64      { return m.sets.count() }
func (m *metrics) deleteCount() int64   { return m.deletes.count() }
func (m *metrics) evictionCount() int64 { return m.evictions.count() }

// RegisterMetrics registers this store's collectors with reg. Call this at
// most once per Store, after construction and before serving traffic.
func (s *Store) RegisterMetrics(reg *prometheus.Registry) {
	reg.MustRegister(
		s.metrics.hits.c,
		s.metrics.misses.c,
		s.metrics.sets.c,
		s.metrics.deletes.c,
		s.metrics.evictions.c,
		s.metrics.usedBytes,
		s.metrics.items,
	)
}
