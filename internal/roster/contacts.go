package roster

import (
	"strings"

	"quickping/internal/identity"
	"quickping/internal/models"
	"quickping/internal/pubsub"
	"quickping/internal/store"

	"go.uber.org/zap"
)

type ContactSource interface {
	SubscribeContacts(store.Filter, func(store.Snapshot[models.Contact])) (*pubsub.Subscription, error)
}

// ContactStore mirrors every contact visible to the signed-in owner: their
// own and other owners'.
type ContactStore struct {
	m *mirror[models.Contact]
}

func NewContactStore(src ContactSource, ident identity.Provider, logger *zap.Logger) *ContactStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactStore{m: &mirror[models.Contact]{
		log:       logger.Named("roster"),
		ident:     ident,
		filter:    func(string) store.Filter { return store.Filter{} },
		subscribe: src.SubscribeContacts,
		id:        func(c models.Contact) string { return c.ID },
	}}
}

// Start binds to the current identity and follows its changes.
func (s *ContactStore) Start() { s.m.start() }

// Stop releases both the identity and the store subscriptions.
func (s *ContactStore) Stop() { s.m.stop() }

// OnChange fires after every applied snapshot and on identity changes.
func (s *ContactStore) OnChange(fn func(owner string)) *pubsub.Subscription {
	return s.m.changes.Subscribe(fn)
}

func (s *ContactStore) All() []models.Contact {
	_, items := s.m.snapshot()
	return items
}

// Personal returns the signed-in owner's own contacts.
func (s *ContactStore) Personal() []models.Contact {
	owner, items := s.m.snapshot()
	out := items[:0]
	for _, c := range items {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	return out
}

func (s *ContactStore) Contact(id string) (models.Contact, bool) {
	return s.m.get(id)
}

// Search matches first name, last name or phone number, case-insensitively.
func (s *ContactStore) Search(query string, personalOnly bool) []models.Contact {
	contacts := s.All()
	if personalOnly {
		contacts = s.Personal()
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return contacts
	}

	out := contacts[:0]
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.FirstName), q) ||
			strings.Contains(strings.ToLower(c.LastName), q) ||
			strings.Contains(c.PhoneNumber, q) {
			out = append(out, c)
		}
	}
	return out
}
