// Package reconcile maintains the derived "unassigned" list: for each owner,
// exactly the personal contacts that no other list of that owner references.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"quickping/internal/identity"
	"quickping/internal/models"
	"quickping/internal/pubsub"
	"quickping/internal/store"

	"go.uber.org/zap"
)

// Store is the slice of the document store the engine reads and writes. All
// reads are point-in-time queries, never the mirrors.
type Store interface {
	Contacts(ctx context.Context, f store.Filter) ([]models.Contact, error)
	ContactsByIDs(ctx context.Context, ids []string) ([]models.Contact, error)
	Lists(ctx context.Context, f store.Filter) ([]models.ContactList, error)
	SaveList(ctx context.Context, actor string, l *models.ContactList) error
	PurgeList(ctx context.Context, actor, id string) error
	SystemListName() string
}

// ChangeSource is a mirror whose changes trigger a pass.
type ChangeSource interface {
	OnChange(fn func(owner string)) *pubsub.Subscription
}

// Notifier surfaces non-fatal notices to the user.
type Notifier interface {
	BroadcastEvent(eventType string, data interface{})
}

// Notice is the payload of a "notice" event.
type Notice struct {
	Level   string `json:"level"`
	Owner   string `json:"owner"`
	Message string `json:"message"`
}

// PersistenceError wraps a store failure during a pass.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Result counts the writes of one pass. A pass over settled data has zero.
type Result struct {
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Deleted    int `json:"deleted"`
	Pruned     int `json:"pruned"`
	Unassigned int `json:"unassigned"`
}

func (r Result) Writes() int {
	return r.Created + r.Updated + r.Deleted
}

type Engine struct {
	store    Store
	ident    identity.Provider
	sources  []ChangeSource
	notifier Notifier
	log      *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	subs     []*pubsub.Subscription
	dropped  atomic.Int64
}

func New(s Store, ident identity.Provider, notifier Notifier, logger *zap.Logger, sources ...ChangeSource) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    s,
		ident:    ident,
		sources:  sources,
		notifier: notifier,
		log:      logger.Named("reconcile"),
		inFlight: make(map[string]bool),
	}
}

// Start triggers a pass on every change of any source. ctx bounds the passes.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.subs) > 0 {
		return
	}
	for _, src := range e.sources {
		e.subs = append(e.subs, src.OnChange(func(string) {
			e.Trigger(ctx)
		}))
	}
}

func (e *Engine) Stop() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Dropped reports how many triggers arrived while a pass was in flight.
func (e *Engine) Dropped() int64 {
	return e.dropped.Load()
}

// Trigger runs one pass for the signed-in owner. A trigger that arrives while
// a pass for the same owner is running is dropped, not queued; the next real
// change triggers again. Failures are logged and surfaced as a notice.
func (e *Engine) Trigger(ctx context.Context) {
	owner, ok := e.ident.Current()
	if !ok {
		return
	}
	if !e.acquire(owner) {
		e.dropped.Add(1)
		e.log.Debug("trigger dropped, pass in flight", zap.String("owner", owner))
		return
	}
	defer e.release(owner)

	res, err := e.Reconcile(ctx, owner)
	if err != nil {
		e.log.Error("reconciliation failed", zap.String("owner", owner), zap.Error(err))
		if e.notifier != nil {
			e.notifier.BroadcastEvent("notice", Notice{
				Level:   "warning",
				Owner:   owner,
				Message: "Could not update the unassigned contacts list. It will retry on the next change.",
			})
		}
		return
	}
	if res.Writes() > 0 {
		e.log.Info("reconciled",
			zap.String("owner", owner),
			zap.Int("created", res.Created),
			zap.Int("updated", res.Updated),
			zap.Int("deleted", res.Deleted),
			zap.Int("pruned", res.Pruned),
			zap.Int("unassigned", res.Unassigned))
	}
}

func (e *Engine) acquire(owner string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[owner] {
		return false
	}
	e.inFlight[owner] = true
	return true
}

func (e *Engine) release(owner string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, owner)
}

// Reconcile runs one pass for owner without the guard.
func (e *Engine) Reconcile(ctx context.Context, owner string) (Result, error) {
	var res Result

	personal, err := e.store.Contacts(ctx, store.Filter{OwnerID: owner})
	if err != nil {
		return res, &PersistenceError{Op: "read contacts", Err: err}
	}
	lists, err := e.store.Lists(ctx, store.Filter{OwnerID: owner})
	if err != nil {
		return res, &PersistenceError{Op: "read lists", Err: err}
	}

	live, err := e.liveContacts(ctx, personal, lists)
	if err != nil {
		return res, err
	}

	var system []models.ContactList
	assigned := make(map[string]bool)
	for i := range lists {
		l := &lists[i]
		if l.IsSystemGenerated {
			system = append(system, *l)
			continue
		}

		members, removed, changed := refresh(l.Members, live)
		if changed {
			l.Members = members
			if err := e.store.SaveList(ctx, owner, l); err != nil {
				return res, &PersistenceError{Op: "prune list " + l.ID, Err: err}
			}
			res.Updated++
			res.Pruned += removed
		}
		for _, m := range l.Members {
			assigned[m.ID] = true
		}
	}

	unassigned := make([]models.ContactSnapshot, 0, len(personal))
	for _, c := range personal {
		if !assigned[c.ID] {
			unassigned = append(unassigned, c.Snapshot())
		}
	}
	res.Unassigned = len(unassigned)

	sort.SliceStable(system, func(i, j int) bool {
		if !system[i].CreatedAt.Equal(system[j].CreatedAt) {
			return system[i].CreatedAt.Before(system[j].CreatedAt)
		}
		return system[i].ID < system[j].ID
	})
	if len(system) > 1 {
		for _, extra := range system[1:] {
			if err := e.store.PurgeList(ctx, owner, extra.ID); err != nil {
				return res, &PersistenceError{Op: "delete duplicate system list", Err: err}
			}
			res.Deleted++
		}
		system = system[:1]
	}

	name := e.store.SystemListName()
	switch {
	case len(unassigned) > 0 && len(system) == 0:
		l := &models.ContactList{
			OwnerID:           owner,
			Name:              name,
			Members:           unassigned,
			IsSystemGenerated: true,
		}
		if err := e.store.SaveList(ctx, owner, l); err != nil {
			return res, &PersistenceError{Op: "create system list", Err: err}
		}
		res.Created++

	case len(unassigned) > 0:
		l := system[0]
		if l.Name == name && sameMembers(l.Members, unassigned) {
			break
		}
		l.Name = name
		l.Members = unassigned
		if err := e.store.SaveList(ctx, owner, &l); err != nil {
			return res, &PersistenceError{Op: "update system list", Err: err}
		}
		res.Updated++

	case len(system) == 1:
		if err := e.store.PurgeList(ctx, owner, system[0].ID); err != nil {
			return res, &PersistenceError{Op: "delete system list", Err: err}
		}
		res.Deleted++
	}

	return res, nil
}

// liveContacts resolves every contact id embedded in any list, plus the
// owner's personal contacts, to its current row.
func (e *Engine) liveContacts(ctx context.Context, personal []models.Contact, lists []models.ContactList) (map[string]models.Contact, error) {
	live := make(map[string]models.Contact, len(personal))
	for _, c := range personal {
		live[c.ID] = c
	}

	var missing []string
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, m := range l.Members {
			if _, ok := live[m.ID]; ok || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			missing = append(missing, m.ID)
		}
	}
	if len(missing) == 0 {
		return live, nil
	}

	others, err := e.store.ContactsByIDs(ctx, missing)
	if err != nil {
		return nil, &PersistenceError{Op: "read list members", Err: err}
	}
	for _, c := range others {
		live[c.ID] = c
	}
	return live, nil
}

// refresh drops members whose contact is gone and re-copies stale snapshots.
func refresh(members []models.ContactSnapshot, live map[string]models.Contact) ([]models.ContactSnapshot, int, bool) {
	out := make([]models.ContactSnapshot, 0, len(members))
	removed := 0
	changed := false
	for _, m := range members {
		c, ok := live[m.ID]
		if !ok {
			removed++
			changed = true
			continue
		}
		snap := c.Snapshot()
		if !snapshotEqual(m, snap) {
			changed = true
		}
		out = append(out, snap)
	}
	return out, removed, changed
}

func snapshotEqual(a, b models.ContactSnapshot) bool {
	return a.ID == b.ID &&
		a.OwnerID == b.OwnerID &&
		a.FirstName == b.FirstName &&
		a.LastName == b.LastName &&
		a.PhoneNumber == b.PhoneNumber &&
		a.PhotoURL == b.PhotoURL &&
		a.CreatedAt.Equal(b.CreatedAt)
}

// sameMembers compares memberships as sets keyed by contact id.
func sameMembers(a, b []models.ContactSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[string]models.ContactSnapshot, len(a))
	for _, m := range a {
		byID[m.ID] = m
	}
	for _, m := range b {
		got, ok := byID[m.ID]
		if !ok || !snapshotEqual(got, m) {
			return false
		}
	}
	return true
}
