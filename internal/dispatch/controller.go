// Package dispatch drives the sequential hand-off of one message to many
// recipients. Each hand-off relinquishes the foreground to the messaging app;
// the controller advances only when the app lifecycle reports a return to the
// foreground. Recipients are never handled in parallel.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"quickping/internal/lifecycle"
	"quickping/internal/models"
	"quickping/internal/pubsub"
	"quickping/internal/whatsapp"

	"go.uber.org/zap"
)

type ListDirectory interface {
	List(id string) (models.ContactList, bool)
}

type ContactDirectory interface {
	Contact(id string) (models.Contact, bool)
}

type Linker interface {
	Link(message, phone string) (whatsapp.Link, error)
}

// Opener is the platform's generic URL-open capability. It reports only
// whether the link could be opened; the messaging app never answers.
type Opener interface {
	Open(ctx context.Context, link whatsapp.Link) error
}

type Lifecycle interface {
	Subscribe(fn func(lifecycle.Transition)) *pubsub.Subscription
}

// Observer receives a "dispatch_progress" event after every transition.
type Observer interface {
	BroadcastEvent(eventType string, data interface{})
}

// Progress is a point-in-time view of the controller.
type Progress struct {
	State            State             `json:"state"`
	SelectedLists    []string          `json:"selected_lists"`
	SelectedContacts []string          `json:"selected_contacts"`
	Message          string            `json:"message,omitempty"`
	Index            int               `json:"index"`
	Total            int               `json:"total"`
	Current          *Recipient        `json:"current,omitempty"`
	Failure          *RecipientFailure `json:"failure,omitempty"`
	Summary          *Summary          `json:"summary,omitempty"`
}

type Config struct {
	Lists     ListDirectory
	Contacts  ContactDirectory
	Links     Linker
	Opener    Opener
	Lifecycle Lifecycle
	Observer  Observer
	Logger    *zap.Logger
}

type Controller struct {
	lists     ListDirectory
	contacts  ContactDirectory
	links     Linker
	opener    Opener
	lifecycle Lifecycle
	observer  Observer
	log       *zap.Logger

	mu          sync.Mutex
	state       State
	listIDs     []string
	contactIDs  []string
	message     string
	batch       *Batch
	gen         uint64
	failure     *RecipientFailure
	summary     *Summary
	lifecycleSb *pubsub.Subscription
}

func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		lists:     cfg.Lists,
		contacts:  cfg.Contacts,
		links:     cfg.Links,
		opener:    cfg.Opener,
		lifecycle: cfg.Lifecycle,
		observer:  cfg.Observer,
		log:       logger.Named("dispatch"),
		state:     StateIdle,
	}
}

// Start registers the resume handler on the lifecycle feed.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lifecycleSb != nil || c.lifecycle == nil {
		return
	}
	c.lifecycleSb = c.lifecycle.Subscribe(func(t lifecycle.Transition) {
		if t.IsResume() {
			c.Resume(ctx)
		}
	})
}

func (c *Controller) Stop() {
	c.mu.Lock()
	sub := c.lifecycleSb
	c.lifecycleSb = nil
	c.mu.Unlock()
	sub.Unsubscribe()
}

func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked()
}

func (c *Controller) progressLocked() Progress {
	p := Progress{
		State:            c.state,
		SelectedLists:    append([]string(nil), c.listIDs...),
		SelectedContacts: append([]string(nil), c.contactIDs...),
		Message:          c.message,
		Failure:          c.failure,
		Summary:          c.summary,
	}
	if c.batch != nil {
		p.Index = c.batch.Index
		p.Total = len(c.batch.Recipients)
		if c.state.dispatching() {
			r := c.batch.current()
			p.Current = &r
		}
	}
	return p
}

func (c *Controller) emit(p Progress) {
	if c.observer != nil {
		c.observer.BroadcastEvent("dispatch_progress", p)
	}
}

// Begin enters the sender flow, discarding any previous selection.
func (c *Controller) Begin() error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateSelecting && !c.state.Terminal() {
		defer c.mu.Unlock()
		return invalid("begin", c.state)
	}
	c.resetLocked()
	c.state = StateSelecting
	p := c.progressLocked()
	c.mu.Unlock()

	c.emit(p)
	return nil
}

// Reset abandons the flow and returns to Idle. A running dispatch must be
// cancelled first.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.state.dispatching() {
		defer c.mu.Unlock()
		return invalid("reset", c.state)
	}
	c.resetLocked()
	c.state = StateIdle
	p := c.progressLocked()
	c.mu.Unlock()

	c.emit(p)
	return nil
}

func (c *Controller) resetLocked() {
	c.listIDs = nil
	c.contactIDs = nil
	c.message = ""
	c.batch = nil
	c.failure = nil
	c.summary = nil
}

// Select replaces the selection. Every id must resolve in the mirrors.
func (c *Controller) Select(listIDs, contactIDs []string) error {
	listIDs = uniq(listIDs)
	contactIDs = uniq(contactIDs)
	for _, id := range listIDs {
		if _, ok := c.lists.List(id); !ok {
			return models.Invalid("list_ids", fmt.Sprintf("unknown list %s", id))
		}
	}
	for _, id := range contactIDs {
		if _, ok := c.contacts.Contact(id); !ok {
			return models.Invalid("contact_ids", fmt.Sprintf("unknown contact %s", id))
		}
	}

	c.mu.Lock()
	if c.state != StateSelecting {
		defer c.mu.Unlock()
		return invalid("select", c.state)
	}
	c.listIDs = listIDs
	c.contactIDs = contactIDs
	p := c.progressLocked()
	c.mu.Unlock()

	c.emit(p)
	return nil
}

// Compose moves on to message composition. At least one contact must be
// selected, directly or through a list.
func (c *Controller) Compose() error {
	c.mu.Lock()
	if c.state != StateSelecting {
		defer c.mu.Unlock()
		return invalid("compose", c.state)
	}
	if len(c.resolveLocked("").Recipients) == 0 {
		c.mu.Unlock()
		return models.Invalid("selection", "select at least one contact")
	}
	c.state = StateComposing
	p := c.progressLocked()
	c.mu.Unlock()

	c.emit(p)
	return nil
}

// SetMessage records the body and moves on to confirmation.
func (c *Controller) SetMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return models.Invalid("message", "must not be empty")
	}

	c.mu.Lock()
	if c.state != StateComposing {
		defer c.mu.Unlock()
		return invalid("set message", c.state)
	}
	c.message = text
	c.state = StateConfirming
	p := c.progressLocked()
	c.mu.Unlock()

	c.emit(p)
	return nil
}

// Back steps from confirmation to composition and from composition to
// selection.
func (c *Controller) Back() error {
	c.mu.Lock()
	switch c.state {
	case StateConfirming:
		c.state = StateComposing
	case StateComposing:
		c.state = StateSelecting
	default:
		defer c.mu.Unlock()
		return invalid("back", c.state)
	}
	p := c.progressLocked()
	c.mu.Unlock()

	c.emit(p)
	return nil
}

// Confirm builds the recipient batch and performs the first hand-off.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConfirming {
		defer c.mu.Unlock()
		return invalid("confirm", c.state)
	}
	batch := c.resolveLocked(c.message)
	if len(batch.Recipients) == 0 {
		c.mu.Unlock()
		return models.Invalid("selection", "selected lists no longer contain any contacts")
	}
	c.batch = &batch
	c.failure = nil
	c.summary = nil
	c.gen++
	c.state = StateDispatching
	c.mu.Unlock()

	c.log.Info("dispatch started", zap.Int("recipients", len(batch.Recipients)))
	c.handoff(ctx)
	return nil
}

func (c *Controller) resolveLocked(message string) Batch {
	lists := make([]models.ContactList, 0, len(c.listIDs))
	for _, id := range c.listIDs {
		if l, ok := c.lists.List(id); ok {
			lists = append(lists, l)
		}
	}
	contacts := make([]models.Contact, 0, len(c.contactIDs))
	for _, id := range c.contactIDs {
		if ct, ok := c.contacts.Contact(id); ok {
			contacts = append(contacts, ct)
		}
	}
	return BuildBatch(lists, contacts, message, c.contacts.Contact)
}

// handoff opens the link for the current recipient. Progress is emitted and
// the link built first; cancellation is then checked immediately before the
// open, and a result that arrives after the run was cancelled is discarded.
func (c *Controller) handoff(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateDispatching || c.batch == nil {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	rec := c.batch.current()
	index := c.batch.Index
	message := c.batch.Message
	p := c.progressLocked()
	c.mu.Unlock()
	c.emit(p)

	link, err := c.links.Link(message, rec.PhoneNumber)
	if err == nil {
		if !c.current(gen) {
			return
		}
		err = c.opener.Open(ctx, link)
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateDispatching {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.failure = &RecipientFailure{Recipient: rec, Index: index, Reason: err.Error(), Err: err}
		c.log.Warn("hand-off failed",
			zap.Int("index", index),
			zap.String("contact_id", rec.ContactID),
			zap.Error(err))
	} else {
		c.batch.Sent++
		c.state = StateAwaitingExternalReturn
		c.log.Debug("handed off", zap.Int("index", index), zap.String("contact_id", rec.ContactID))
	}
	p = c.progressLocked()
	c.mu.Unlock()

	c.emit(p)
}

// current reports whether run gen is still dispatching. It is the last check
// before a link is opened.
func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.state == StateDispatching
}

// Resume is the foreground-return handler. It advances to the next
// recipient, or completes the run after the last one. It does nothing unless
// the controller is awaiting the return.
func (c *Controller) Resume(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateAwaitingExternalReturn {
		c.mu.Unlock()
		return
	}
	c.advanceLocked(ctx)
}

// advanceLocked must be entered with c.mu held; it releases it.
func (c *Controller) advanceLocked(ctx context.Context) {
	if c.batch.hasNext() {
		c.batch.Index++
		c.state = StateDispatching
		c.mu.Unlock()
		c.handoff(ctx)
		return
	}

	s := c.batch.summary()
	c.summary = &s
	c.state = StateCompleted
	p := c.progressLocked()
	c.mu.Unlock()

	c.log.Info("dispatch completed",
		zap.Int("processed", s.Processed),
		zap.Int("sent", s.Sent),
		zap.Int("skipped", s.Skipped))
	c.emit(p)
}

// Resolve answers a pending recipient failure. Stop fails the run; skip moves
// on to the next recipient.
func (c *Controller) Resolve(ctx context.Context, choice Choice) error {
	if _, err := ParseChoice(string(choice)); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateDispatching || c.failure == nil {
		defer c.mu.Unlock()
		return invalid("resolve", c.state)
	}
	c.failure = nil

	if choice == ChoiceSkip {
		c.batch.Skipped++
		c.advanceLocked(ctx)
		return nil
	}

	s := c.batch.summary()
	c.summary = &s
	c.state = StateFailed
	c.gen++
	p := c.progressLocked()
	c.mu.Unlock()

	c.log.Info("dispatch stopped after failure", zap.Int("processed", s.Processed))
	c.emit(p)
	return nil
}

// Cancel halts a running dispatch immediately and discards the remaining
// recipients. Partial progress is reported, not treated as an error.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if !c.state.dispatching() {
		defer c.mu.Unlock()
		return invalid("cancel", c.state)
	}
	s := c.batch.summary()
	c.summary = &s
	c.failure = nil
	c.state = StateCancelled
	c.gen++
	p := c.progressLocked()
	c.mu.Unlock()

	c.log.Info("dispatch cancelled", zap.Int("processed", s.Processed), zap.Int("total", s.Total))
	c.emit(p)
	return nil
}

func uniq(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
