package roster

import (
	"sort"

	"quickping/internal/identity"
	"quickping/internal/models"
	"quickping/internal/pubsub"
	"quickping/internal/store"

	"go.uber.org/zap"
)

type ListSource interface {
	SubscribeLists(store.Filter, func(store.Snapshot[models.ContactList])) (*pubsub.Subscription, error)
}

// ListStore mirrors the signed-in owner's lists.
type ListStore struct {
	m *mirror[models.ContactList]
}

func NewListStore(src ListSource, ident identity.Provider, logger *zap.Logger) *ListStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListStore{m: &mirror[models.ContactList]{
		log:       logger.Named("lists"),
		ident:     ident,
		filter:    func(owner string) store.Filter { return store.Filter{OwnerID: owner} },
		subscribe: src.SubscribeLists,
		id:        func(l models.ContactList) string { return l.ID },
	}}
}

func (s *ListStore) Start() { s.m.start() }

func (s *ListStore) Stop() { s.m.stop() }

func (s *ListStore) OnChange(fn func(owner string)) *pubsub.Subscription {
	return s.m.changes.Subscribe(fn)
}

// Lists returns the owner's lists in display order.
func (s *ListStore) Lists() []models.ContactList {
	_, items := s.m.snapshot()
	SortLists(items)
	return items
}

func (s *ListStore) List(id string) (models.ContactList, bool) {
	return s.m.get(id)
}

// System returns the derived list, if the owner currently has one.
func (s *ListStore) System() (models.ContactList, bool) {
	_, items := s.m.snapshot()
	for _, l := range items {
		if l.IsSystemGenerated {
			return l, true
		}
	}
	return models.ContactList{}, false
}

// SortLists orders lists by name with the system list always last. The order
// is for display only.
func SortLists(lists []models.ContactList) {
	sort.SliceStable(lists, func(i, j int) bool {
		a, b := lists[i], lists[j]
		if a.IsSystemGenerated != b.IsSystemGenerated {
			return b.IsSystemGenerated
		}
		return a.Name < b.Name
	})
}
