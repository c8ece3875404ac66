// Package lifecycle tracks the host application's foreground state. Its
// transition feed is the only resume signal the dispatch controller consumes.
package lifecycle

import (
	"fmt"
	"strings"
	"sync"

	"quickping/internal/pubsub"
)

type State string

const (
	StateActive     State = "active"
	StateInactive   State = "inactive"
	StateBackground State = "background"
)

// ParseState accepts the state names reported by devices, case-insensitively.
func ParseState(s string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StateActive:
		return StateActive, nil
	case StateInactive:
		return StateInactive, nil
	case StateBackground:
		return StateBackground, nil
	}
	return "", fmt.Errorf("unknown app state %q", s)
}

// Transition is published whenever the state changes.
type Transition struct {
	From State
	To   State
}

// IsResume reports a return to the foreground from background or inactive.
func (t Transition) IsResume() bool {
	return t.To == StateActive && (t.From == StateBackground || t.From == StateInactive)
}

// Monitor holds the current state and publishes transitions.
type Monitor struct {
	mu    sync.Mutex
	state State
	feed  pubsub.Feed[Transition]
}

// NewMonitor starts in the active state.
func NewMonitor() *Monitor {
	return &Monitor{state: StateActive}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set records the new state; repeated reports of the same state are ignored.
func (m *Monitor) Set(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	t := Transition{From: m.state, To: s}
	m.state = s
	m.mu.Unlock()

	m.feed.Publish(t)
}

func (m *Monitor) Subscribe(fn func(Transition)) *pubsub.Subscription {
	return m.feed.Subscribe(fn)
}
