package core

import (
	"context"
	"time"

	"hemrs/app/src/domain"
)

// ReadThrough serves the latest measurement for a key from the cache and
// falls back to the store on a miss, caching what it loads unless a newer
// value was cached while the load was in flight.
type ReadThrough struct {
	cache        *MeasurementCache
	store        domain.LatestReader
	storeTimeout time.Duration
}

func NewReadThrough(cache *MeasurementCache, store domain.LatestReader, storeTimeout time.Duration) *ReadThrough {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &ReadThrough{cache: cache, store: store, storeTimeout: storeTimeout}
}

// Latest returns the cached value for key or loads it from the store.
func (r *ReadThrough) Latest(ctx context.Context, key domain.MeasurementKey) (domain.Measurement, error) {
	if m, ok := r.cache.Get(key); ok {
		return m, nil
	}

	m, err := r.load(ctx, key)
	if err != nil {
		return domain.Measurement{}, err
	}
	return r.cache.Fill(key, m), nil
}

// LatestIf behaves like Latest but a store value is cached and reported as
// admitted only when admit accepts it. Cached values are checked as well.
func (r *ReadThrough) LatestIf(ctx context.Context, key domain.MeasurementKey, admit func(domain.Measurement) bool) (domain.Measurement, bool, error) {
	if m, ok := r.cache.Get(key); ok {
		return m, admit(m), nil
	}

	m, err := r.load(ctx, key)
	if err != nil {
		return domain.Measurement{}, false, err
	}
	if !admit(m) {
		return m, false, nil
	}
	m = r.cache.Fill(key, m)
	return m, admit(m), nil
}

func (r *ReadThrough) load(ctx context.Context, key domain.MeasurementKey) (domain.Measurement, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.store.LatestMeasurement(callCtx, key)
}
