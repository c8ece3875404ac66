// Package store is the persistence and live-sync collaborator. Writes go
// through gorm with an ownership check; every successful write wakes the
// subscriptions whose owner filter matches, and each subscription re-reads
// and delivers a full snapshot of its filtered collection.
package store

import (
	"context"
	"errors"
	"sync"

	"quickping/internal/pubsub"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrNotOwner   = errors.New("only the owner may modify this record")
	ErrSystemList = errors.New("the system list is maintained automatically")
	ErrClosed     = errors.New("store is closed")
)

// Filter selects records by owner. An empty OwnerID matches every owner.
type Filter struct {
	OwnerID string
}

func (f Filter) matches(owner string) bool {
	return f.OwnerID == "" || f.OwnerID == owner
}

func (f Filter) apply(db *gorm.DB) *gorm.DB {
	if f.OwnerID == "" {
		return db
	}
	return db.Where("owner_id = ?", f.OwnerID)
}

// Snapshot is one delivery of a live subscription.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

// PhoneCanonicalizer turns user-typed numbers into the stored digits-only form.
type PhoneCanonicalizer interface {
	Canonical(phone string) (string, error)
}

type Options struct {
	Phones         PhoneCanonicalizer
	SystemListName string
	Logger         *zap.Logger
}

type topic int

const (
	topicContacts topic = iota + 1
	topicLists
)

type subscriber struct {
	topic   topic
	filter  Filter
	signal  chan struct{}
	stop    chan struct{}
	deliver func(ctx context.Context)
}

type Store struct {
	db         *gorm.DB
	phones     PhoneCanonicalizer
	systemName string
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
	closed bool
	wg     sync.WaitGroup
}

func New(db *gorm.DB, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		db:         db,
		phones:     opts.Phones,
		systemName: opts.SystemListName,
		log:        logger.Named("store"),
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[uint64]*subscriber),
	}
}

// SystemListName is the reserved name of the derived list.
func (s *Store) SystemListName() string {
	return s.systemName
}

// Close stops every subscription and waits for their goroutines to exit.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		close(sub.stop)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Store) subscribe(t topic, f Filter, deliver func(ctx context.Context)) (*pubsub.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	s.nextID++
	id := s.nextID
	sub := &subscriber{
		topic:   t,
		filter:  f,
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		deliver: deliver,
	}
	s.subs[id] = sub

	s.wg.Add(1)
	go s.watch(sub)

	return pubsub.NewSubscription(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			close(sub.stop)
			delete(s.subs, id)
		}
	}), nil
}

// watch delivers the initial snapshot, then one snapshot per wake-up. The
// one-slot signal coalesces bursts of writes into a single re-read.
func (s *Store) watch(sub *subscriber) {
	defer s.wg.Done()
	for {
		select {
		case <-sub.stop:
			return
		default:
		}
		sub.deliver(s.ctx)

		select {
		case <-sub.stop:
			return
		case <-sub.signal:
		}
	}
}

func (s *Store) publish(t topic, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.topic != t || !sub.filter.matches(owner) {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Owners lists every owner id that holds contacts or lists.
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	var owners []string
	err := s.db.WithContext(ctx).Raw(
		"SELECT owner_id FROM contacts UNION SELECT owner_id FROM contact_lists ORDER BY owner_id",
	).Scan(&owners).Error
	return owners, err
}
