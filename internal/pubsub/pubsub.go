// Package pubsub provides the observer primitive shared by every live feed in
// the service: identity changes, app lifecycle transitions, roster and list
// mirrors, and store snapshots.
package pubsub

import (
	"sync"
)

// Subscription is the handle returned by every Subscribe call. Unsubscribe is
// mandatory on teardown and safe to call more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps cancel so that it runs at most once.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe detaches the subscriber. Later calls are no-ops.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Feed fans a value out to every registered handler, synchronously and in
// registration order. The zero value is ready to use.
type Feed[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]func(T)
	order    []uint64
}

// Subscribe registers fn for every later Publish.
func (f *Feed[T]) Subscribe(fn func(T)) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handlers == nil {
		f.handlers = make(map[uint64]func(T))
	}
	f.nextID++
	id := f.nextID
	f.handlers[id] = fn
	f.order = append(f.order, id)

	return NewSubscription(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
		for i, v := range f.order {
			if v == id {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	})
}

// Publish delivers v to the handlers registered at the time of the call.
// Handlers run outside the feed lock, so they may subscribe or unsubscribe.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	fns := make([]func(T), 0, len(f.order))
	for _, id := range f.order {
		fns = append(fns, f.handlers[id])
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the number of active handlers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
