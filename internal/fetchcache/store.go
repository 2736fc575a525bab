// Package fetchcache keeps fetched resources keyed by (kind, scope) and makes
// sure at most one request per key is in flight at any time.
package fetchcache

import (
	"sync"
	"time"
)

// Key identifies a logical resource, e.g. {Kind: "stream", Scope: "global"}
type Key struct {
	Kind  string
	Scope string
}

func (k Key) String() string { return k.Kind + "/" + k.Scope }

type entry[V any] struct {
	value     V
	stale     bool
	updatedAt time.Time
}

// Store holds one value per key. Values are replaced wholesale, never
// mutated, so a reader holding an old value is unaffected by later writes.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[Key]entry[V]
	now     func() time.Time
}

// NewStore creates an empty Store
func NewStore[V any]() *Store[V] {
	return &Store[V]{
		entries: make(map[Key]entry[V]),
		now:     time.Now,
	}
}

// Get returns the value for k and whether it exists
func (s *Store[V]) Get(k Key) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[k]
	return e.value, ok
}

// Fresh reports whether k holds a value that has not been invalidated
func (s *Store[V]) Fresh(k Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[k]
	return ok && !e.stale
}

// UpdatedAt returns when k was last written
func (s *Store[V]) UpdatedAt(k Key) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[k]
	return e.updatedAt, ok
}

// Set replaces the value for k and marks it fresh
func (s *Store[V]) Set(k Key, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = entry[V]{value: v, updatedAt: s.now()}
}

// Update replaces the value for k with fn(old). fn runs under the store's
// write lock and must return a new value instead of modifying old. When k is
// absent fn receives ok=false; returning keep=false leaves the store as it
// was. The staleness of an existing entry is preserved.
func (s *Store[V]) Update(k Key, fn func(old V, ok bool) (next V, keep bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	next, keep := fn(e.value, ok)
	if !keep {
		return false
	}
	s.entries[k] = entry[V]{value: next, stale: ok && e.stale, updatedAt: s.now()}
	return true
}

// Invalidate marks k stale. The value stays readable until it is refetched.
func (s *Store[V]) Invalidate(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[k]; ok {
		e.stale = true
		s.entries[k] = e
	}
}

// Delete drops k entirely
func (s *Store[V]) Delete(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, k)
}

// Keys lists the keys currently held
func (s *Store[V]) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}
