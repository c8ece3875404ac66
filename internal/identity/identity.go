// Package identity exposes the authenticated owner to the components that
// need it. Components receive a Provider at construction instead of reading a
// process-wide auth singleton.
package identity

import (
	"sync"

	"quickping/internal/pubsub"
)

// Provider reports the current owner identity and its changes. The handler
// receives the new owner id, or "" after sign-out.
type Provider interface {
	Current() (string, bool)
	Subscribe(fn func(owner string)) *pubsub.Subscription
}

// Session is the in-process Provider used by the server: one signed-in owner
// at a time, like the device app it serves.
type Session struct {
	mu    sync.RWMutex
	owner string
	feed  pubsub.Feed[string]
}

// NewSession returns a Session, signed in as owner when owner is non-empty.
func NewSession(owner string) *Session {
	return &Session{owner: owner}
}

func (s *Session) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, s.owner != ""
}

func (s *Session) Subscribe(fn func(owner string)) *pubsub.Subscription {
	return s.feed.Subscribe(fn)
}

// SignIn switches the session to owner. Subscribers are only notified when
// the owner actually changes.
func (s *Session) SignIn(owner string) {
	s.set(owner)
}

func (s *Session) SignOut() {
	s.set("")
}

func (s *Session) set(owner string) {
	s.mu.Lock()
	if s.owner == owner {
		s.mu.Unlock()
		return
	}
	s.owner = owner
	s.mu.Unlock()

	s.feed.Publish(owner)
}
