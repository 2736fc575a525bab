package fetchcache

import (
	"context"
)

// LoadFunc fetches the value for a key from the network
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Fetcher serves values from a Store and loads missing or stale ones through
// a Tracker, so concurrent callers share one network call.
type Fetcher[V any] struct {
	store   *Store[V]
	tracker *Tracker[V]
}

// NewFetcher wires a Fetcher over store
func NewFetcher[V any](store *Store[V]) *Fetcher[V] {
	return &Fetcher[V]{store: store, tracker: NewTracker[V]()}
}

// Store returns the backing store
func (f *Fetcher[V]) Store() *Store[V] { return f.store }

// Tracker returns the pending-request tracker
func (f *Fetcher[V]) Tracker() *Tracker[V] { return f.tracker }

// Fetch returns the cached value for k when fresh, otherwise loads it
func (f *Fetcher[V]) Fetch(ctx context.Context, k Key, load LoadFunc[V]) (V, error) {
	if v, ok := f.store.Get(k); ok && f.store.Fresh(k) {
		return v, nil
	}
	return f.Refetch(ctx, k, load)
}

// Refetch loads k regardless of freshness. A load already in flight for k is
// joined instead of repeated. The load is detached from ctx: a caller that
// stops waiting does not cancel it, and its result still lands in the store.
func (f *Fetcher[V]) Refetch(ctx context.Context, k Key, load LoadFunc[V]) (V, error) {
	detached := context.WithoutCancel(ctx)
	return f.tracker.Do(ctx, k, func() (V, error) {
		v, err := load(detached)
		if err != nil {
			return v, err
		}
		f.store.Set(k, v)
		return v, nil
	})
}
