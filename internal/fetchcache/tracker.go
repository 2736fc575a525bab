package fetchcache

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Call is a request in flight. Every waiter observes the same result.
type Call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Done is closed once the call has settled
func (c *Call[V]) Done() <-chan struct{} { return c.done }

// Wait blocks until the call settles or ctx ends. Giving up on the wait does
// not abort the call.
func (c *Call[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Tracker deduplicates concurrent requests for the same key
type Tracker[V any] struct {
	mu    sync.Mutex
	calls map[Key]*Call[V]
}

// NewTracker creates an empty Tracker
func NewTracker[V any]() *Tracker[V] {
	return &Tracker[V]{calls: make(map[Key]*Call[V])}
}

// Track starts fn under k unless a call for k is already pending, in which
// case that call is returned with started=false and fn is not run. The
// registration is cleared once fn returns, errors or panics.
func (t *Tracker[V]) Track(k Key, fn func() (V, error)) (c *Call[V], started bool) {
	t.mu.Lock()
	if existing, ok := t.calls[k]; ok {
		t.mu.Unlock()
		return existing, false
	}
	c = &Call[V]{done: make(chan struct{})}
	t.calls[k] = c
	t.mu.Unlock()

	go t.run(k, c, fn)
	return c, true
}

// Pending returns the in-flight call for k, if any
func (t *Tracker[V]) Pending(k Key) (*Call[V], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[k]
	return c, ok
}

// Do attaches to the pending call for k, or starts fn, and waits for it
func (t *Tracker[V]) Do(ctx context.Context, k Key, fn func() (V, error)) (V, error) {
	c, _ := t.Track(k, fn)
	return c.Wait(ctx)
}

// Len returns the number of calls in flight
func (t *Tracker[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *Tracker[V]) run(k Key, c *Call[V], fn func() (V, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = errors.Errorf("request %s panicked: %v", k, r)
		}
		t.mu.Lock()
		if t.calls[k] == c {
			delete(t.calls, k)
		}
		t.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn()
}
