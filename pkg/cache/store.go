package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jonboulle/clockwork"
)

// entry is a cached value with its insertion time and lifetime
type entry struct {
	value      any
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// partition is the storage of a single namespace
type partition struct {
	mu    sync.Mutex
	lru   *simplelru.LRU[string, entry]
	ttl   time.Duration
	stats NamespaceStats
}

// NamespaceStats holds counters for one namespace
type NamespaceStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	Entries     int     `json:"entries"`
	Capacity    int     `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
}

// Store is a set of independent LRU caches, one per namespace, each bounded by
// entry count and by a per-entry TTL.
//
// Use NewStore to create instances; there is no package-level store, so tests
// can build a fresh one per case.
type Store struct {
	mu         sync.RWMutex
	partitions map[Namespace]*partition
	clock      clockwork.Clock
	metrics    *Metrics
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used for TTL checks
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics attaches Prometheus metrics to the store
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates a store with one partition per configured namespace.
// A nil or empty config uses DefaultNamespaces.
func NewStore(namespaces map[Namespace]NamespaceConfig, opts ...Option) *Store {
	if len(namespaces) == 0 {
		namespaces = DefaultNamespaces()
	}

	s := &Store{
		partitions: make(map[Namespace]*partition, len(namespaces)),
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for ns, cfg := range namespaces {
		s.partitions[ns] = newPartition(cfg)
	}

	return s
}

func newPartition(cfg NamespaceConfig) *partition {
	if cfg.Capacity <= 0 {
		cfg.Capacity = FallbackNamespaceConfig.Capacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = FallbackNamespaceConfig.TTL
	}

	// NewLRU only fails for a non-positive size, which is ruled out above
	lru, _ := simplelru.NewLRU[string, entry](cfg.Capacity, nil)

	return &partition{
		lru:   lru,
		ttl:   cfg.TTL,
		stats: NamespaceStats{Capacity: cfg.Capacity},
	}
}

// partition returns the partition for ns, creating it when create is set
func (s *Store) partition(ns Namespace, create bool) *partition {
	s.mu.RLock()
	p, ok := s.partitions[ns]
	s.mu.RUnlock()
	if ok || !create {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.partitions[ns]; ok {
		return p
	}
	p = newPartition(FallbackNamespaceConfig)
	s.partitions[ns] = p
	return p
}

// Get returns the value stored under key, or false when the key was never set,
// has outlived its TTL, or was evicted.
func (s *Store) Get(ns Namespace, key string) (any, bool) {
	p := s.partition(ns, false)
	if p == nil {
		s.metrics.recordMiss(ns)
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.lru.Get(key)
	if !ok {
		p.stats.Misses++
		s.metrics.recordMiss(ns)
		return nil, false
	}

	if e.expired(s.clock.Now()) {
		p.lru.Remove(key)
		p.stats.Misses++
		p.stats.Expirations++
		s.metrics.recordMiss(ns)
		s.metrics.recordExpiration(ns, 1)
		return nil, false
	}

	p.stats.Hits++
	s.metrics.recordHit(ns)
	return e.value, true
}

// peek is Get without recency, stats or expiry removal
func (s *Store) peek(ns Namespace, key string) (any, bool) {
	p := s.partition(ns, false)
	if p == nil {
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.lru.Peek(key)
	if !ok || e.expired(s.clock.Now()) {
		return nil, false
	}
	return e.value, true
}

// Set inserts or replaces key. A ttl <= 0 uses the namespace default.
// When the namespace is full its least recently used entry is evicted.
func (s *Store) Set(ns Namespace, key string, value any, ttl time.Duration) {
	p := s.partition(ns, true)

	p.mu.Lock()
	defer p.mu.Unlock()

	if ttl <= 0 {
		ttl = p.ttl
	}

	evicted := p.lru.Add(key, entry{
		value:      value,
		insertedAt: s.clock.Now(),
		ttl:        ttl,
	})
	if evicted {
		p.stats.Evictions++
		s.metrics.recordEviction(ns)
	}
	s.metrics.setEntries(ns, p.lru.Len())
}

// Delete removes key from the namespace. Missing keys are ignored.
func (s *Store) Delete(ns Namespace, key string) {
	p := s.partition(ns, false)
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lru.Remove(key)
	s.metrics.setEntries(ns, p.lru.Len())
}

// DeleteFunc removes every key of the namespace for which match returns true
// and returns the number of removed keys.
func (s *Store) DeleteFunc(ns Namespace, match func(key string) bool) int {
	p := s.partition(ns, false)
	if p == nil {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for _, key := range p.lru.Keys() {
		if match(key) {
			p.lru.Remove(key)
			removed++
		}
	}
	s.metrics.setEntries(ns, p.lru.Len())
	return removed
}

// Clear removes all entries of a single namespace
func (s *Store) Clear(ns Namespace) {
	p := s.partition(ns, false)
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lru.Purge()
	s.metrics.setEntries(ns, 0)
}

// Keys returns the keys currently held by the namespace, oldest first.
// Expired entries that have not been read yet are included.
func (s *Store) Keys(ns Namespace) []string {
	p := s.partition(ns, false)
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lru.Keys()
}

// Len returns the number of entries held by the namespace
func (s *Store) Len(ns Namespace) int {
	p := s.partition(ns, false)
	if p == nil {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lru.Len()
}

// TTL returns the default TTL of the namespace
func (s *Store) TTL(ns Namespace) time.Duration {
	p := s.partition(ns, false)
	if p == nil {
		return FallbackNamespaceConfig.TTL
	}
	return p.ttl
}

// PurgeExpired removes expired entries from every namespace without waiting
// for them to be read, and returns how many were removed.
func (s *Store) PurgeExpired() int {
	s.mu.RLock()
	partitions := make(map[Namespace]*partition, len(s.partitions))
	for ns, p := range s.partitions {
		partitions[ns] = p
	}
	s.mu.RUnlock()

	now := s.clock.Now()
	total := 0
	for ns, p := range partitions {
		p.mu.Lock()
		removed := 0
		for _, key := range p.lru.Keys() {
			if e, ok := p.lru.Peek(key); ok && e.expired(now) {
				p.lru.Remove(key)
				removed++
			}
		}
		p.stats.Expirations += int64(removed)
		s.metrics.setEntries(ns, p.lru.Len())
		p.mu.Unlock()

		s.metrics.recordExpiration(ns, removed)
		total += removed
	}
	return total
}

// Stats returns a snapshot of the counters of every namespace
func (s *Store) Stats() map[Namespace]NamespaceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Namespace]NamespaceStats, len(s.partitions))
	for ns, p := range s.partitions {
		p.mu.Lock()
		stats := p.stats
		stats.Entries = p.lru.Len()
		p.mu.Unlock()

		if total := stats.Hits + stats.Misses; total > 0 {
			stats.HitRate = float64(stats.Hits) / float64(total)
		}
		out[ns] = stats
	}
	return out
}
