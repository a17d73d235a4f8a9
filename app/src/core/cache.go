package core

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

const (
	DefaultCacheCapacity = 128
	DefaultCacheTTL      = 60 * time.Second
)

// MeasurementCache holds the latest known measurement per device/sensor
// pair. Entries older than the TTL are never returned and at most capacity
// entries are kept, evicting the least recently used one first.
type MeasurementCache struct {
	// mu orders Insert against Fill so a read-through load never replaces a
	// value written while it was in flight.
	mu       sync.Mutex
	lru      *expirable.LRU[domain.MeasurementKey, domain.Measurement]
	capacity int
	ttl      time.Duration
}

// CacheOption customises a MeasurementCache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	onEvict func(domain.MeasurementKey, domain.Measurement)
}

// WithEvictionHook is called for every entry removed by capacity or expiry.
func WithEvictionHook(fn func(domain.MeasurementKey, domain.Measurement)) CacheOption {
	return func(o *cacheOptions) {
		o.onEvict = fn
	}
}

func NewMeasurementCache(capacity int, ttl time.Duration, opts ...CacheOption) *MeasurementCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	var o cacheOptions
	for _, opt := range opts {
		opt(&o)
	}

	onEvict := func(key domain.MeasurementKey, value domain.Measurement) {
		infra.IncCacheEvictions()
		if o.onEvict != nil {
			o.onEvict(key, value)
		}
	}

	return &MeasurementCache{
		lru:      expirable.NewLRU[domain.MeasurementKey, domain.Measurement](capacity, onEvict, ttl),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Get returns the cached measurement unless it is absent or expired.
func (c *MeasurementCache) Get(key domain.MeasurementKey) (domain.Measurement, bool) {
	return c.lru.Get(key)
}

// Insert stores m under key, replacing any previous value and resetting its age.
func (c *MeasurementCache) Insert(key domain.MeasurementKey, m domain.Measurement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, m)
}

// Fill caches a value loaded from the store unless a newer one is already
// cached, and returns whichever value the cache now holds.
func (c *MeasurementCache) Fill(key domain.MeasurementKey, m domain.Measurement) domain.Measurement {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.lru.Peek(key); ok && cur.Timestamp.After(m.Timestamp) {
		return cur
	}
	c.lru.Add(key, m)
	return m
}

// Len reports the number of entries, never more than the capacity.
func (c *MeasurementCache) Len() int {
	return c.lru.Len()
}

func (c *MeasurementCache) Capacity() int {
	return c.capacity
}

func (c *MeasurementCache) TTL() time.Duration {
	return c.ttl
}

func (c *MeasurementCache) Purge() {
	c.lru.Purge()
}
