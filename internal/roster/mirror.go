// Package roster keeps in-memory mirrors of the store's live contact and list
// feeds for the signed-in owner. The mirrors rebind whenever the identity
// changes and publish a change event after every applied snapshot.
package roster

import (
	"sync"

	"quickping/internal/identity"
	"quickping/internal/pubsub"
	"quickping/internal/store"

	"go.uber.org/zap"
)

type subscribeFunc[T any] func(store.Filter, func(store.Snapshot[T])) (*pubsub.Subscription, error)

type mirror[T any] struct {
	log       *zap.Logger
	ident     identity.Provider
	filter    func(owner string) store.Filter
	subscribe subscribeFunc[T]
	id        func(T) string

	mu       sync.RWMutex
	gen      uint64
	owner    string
	items    []T
	byID     map[string]T
	identSub *pubsub.Subscription
	feedSub  *pubsub.Subscription

	changes pubsub.Feed[string]
}

func (m *mirror[T]) start() {
	m.mu.Lock()
	if m.identSub != nil {
		m.mu.Unlock()
		return
	}
	m.identSub = m.ident.Subscribe(m.rebind)
	m.mu.Unlock()

	owner, _ := m.ident.Current()
	m.rebind(owner)
}

func (m *mirror[T]) stop() {
	m.mu.Lock()
	identSub, feedSub := m.identSub, m.feedSub
	m.identSub, m.feedSub = nil, nil
	m.gen++
	m.mu.Unlock()

	identSub.Unsubscribe()
	feedSub.Unsubscribe()
}

func (m *mirror[T]) rebind(owner string) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	old := m.feedSub
	m.feedSub = nil
	m.owner = owner
	m.items = nil
	m.byID = nil
	m.mu.Unlock()

	old.Unsubscribe()
	if owner == "" {
		m.changes.Publish(owner)
		return
	}

	sub, err := m.subscribe(m.filter(owner), func(s store.Snapshot[T]) {
		m.apply(gen, s)
	})
	if err != nil {
		m.log.Error("subscribe failed", zap.String("owner", owner), zap.Error(err))
		return
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	m.feedSub = sub
	m.mu.Unlock()
}

func (m *mirror[T]) apply(gen uint64, s store.Snapshot[T]) {
	if s.Err != nil {
		m.log.Warn("sync failed, keeping last snapshot", zap.Error(s.Err))
		return
	}

	byID := make(map[string]T, len(s.Items))
	for _, item := range s.Items {
		byID[m.id(item)] = item
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.items = s.Items
	m.byID = byID
	owner := m.owner
	m.mu.Unlock()

	m.changes.Publish(owner)
}

func (m *mirror[T]) snapshot() (string, []T) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, len(m.items))
	copy(out, m.items)
	return m.owner, out
}

func (m *mirror[T]) get(id string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.byID[id]
	return v, ok
}
