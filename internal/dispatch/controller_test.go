package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"quickping/internal/lifecycle"
	"quickping/internal/models"
	"quickping/internal/whatsapp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type directory struct {
	lists    map[string]models.ContactList
	contacts map[string]models.Contact
}

func (d *directory) List(id string) (models.ContactList, bool) {
	l, ok := d.lists[id]
	return l, ok
}

func (d *directory) Contact(id string) (models.Contact, bool) {
	c, ok := d.contacts[id]
	return c, ok
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []whatsapp.Link
	fail   map[string]error
	onOpen func()
}

func (o *fakeOpener) Open(_ context.Context, link whatsapp.Link) error {
	o.mu.Lock()
	err := o.fail[link.Phone]
	if err == nil {
		o.opened = append(o.opened, link)
	}
	hook := o.onOpen
	o.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (o *fakeOpener) phones() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, l := range o.opened {
		out = append(out, l.Phone)
	}
	return out
}

type eventLog struct {
	mu      sync.Mutex
	states  []State
	onEvent func(Progress)
}

func (e *eventLog) BroadcastEvent(eventType string, data interface{}) {
	p, ok := data.(Progress)
	if !ok {
		return
	}
	e.mu.Lock()
	e.states = append(e.states, p.State)
	hook := e.onEvent
	e.mu.Unlock()
	if hook != nil {
		hook(p)
	}
}

func (e *eventLog) count(s State) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, st := range e.states {
		if st == s {
			n++
		}
	}
	return n
}

type harness struct {
	ctl     *Controller
	dir     *directory
	opener  *fakeOpener
	monitor *lifecycle.Monitor
	events  *eventLog
}

func contact(id, phone string) models.Contact {
	return models.Contact{ID: id, OwnerID: "u1", FirstName: id, PhoneNumber: phone}
}

func newHarness(t *testing.T) *harness {
	a := contact("A", "0501111111")
	b := contact("B", "0502222222")
	c := contact("C", "0503333333")

	dir := &directory{
		lists: map[string]models.ContactList{
			"L1": {ID: "L1", Name: "Work", Members: []models.ContactSnapshot{a.Snapshot(), b.Snapshot()}},
			"L2": {ID: "L2", Name: "Friends", Members: []models.ContactSnapshot{b.Snapshot(), c.Snapshot()}},
			"E":  {ID: "E", Name: "Empty"},
		},
		contacts: map[string]models.Contact{"A": a, "B": b, "C": c},
	}
	h := &harness{
		dir:     dir,
		opener:  &fakeOpener{fail: map[string]error{}},
		monitor: lifecycle.NewMonitor(),
		events:  &eventLog{},
	}
	h.ctl = New(Config{
		Lists:     dir,
		Contacts:  dir,
		Links:     &whatsapp.Client{CountryCode: "972", TrunkPrefix: "0", MinDigits: 7, Scheme: "whatsapp", WebHost: "wa.me"},
		Opener:    h.opener,
		Lifecycle: h.monitor,
		Observer:  h.events,
	})
	h.ctl.Start(context.Background())
	t.Cleanup(h.ctl.Stop)
	return h
}

// resume simulates the user coming back from the messaging app.
func (h *harness) resume() {
	h.monitor.Set(lifecycle.StateBackground)
	h.monitor.Set(lifecycle.StateActive)
}

func (h *harness) confirm(t *testing.T, lists, contacts []string) {
	t.Helper()
	require.NoError(t, h.ctl.Begin())
	require.NoError(t, h.ctl.Select(lists, contacts))
	require.NoError(t, h.ctl.Compose())
	require.NoError(t, h.ctl.SetMessage("Hello"))
	require.NoError(t, h.ctl.Confirm(context.Background()))
}

func TestBuildBatch_Dedup(t *testing.T) {
	x := contact("X", "0501111111")
	y := contact("Y", "0502222222")
	lists := []models.ContactList{
		{Members: []models.ContactSnapshot{x.Snapshot(), y.Snapshot()}},
		{Members: []models.ContactSnapshot{y.Snapshot()}},
	}

	b := BuildBatch(lists, []models.Contact{x, y}, "hi", nil)
	require.Len(t, b.Recipients, 2)
	assert.Equal(t, "X", b.Recipients[0].ContactID)
	assert.Equal(t, "Y", b.Recipients[1].ContactID)
	assert.Equal(t, "hi", b.Message)
}

func TestBuildBatch_PrefersFreshRecord(t *testing.T) {
	old := contact("X", "0501111111")
	fresh := contact("X", "0509999999")
	lists := []models.ContactList{{Members: []models.ContactSnapshot{old.Snapshot()}}}

	b := BuildBatch(lists, nil, "hi", func(id string) (models.Contact, bool) { return fresh, true })
	assert.Equal(t, "0509999999", b.Recipients[0].PhoneNumber)
}

func TestSelectionValidation(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.ctl.Select(nil, []string{"A"}), ErrInvalidTransition)
	require.NoError(t, h.ctl.Begin())

	var verr *models.ValidationError
	assert.True(t, errors.As(h.ctl.Select([]string{"nope"}, nil), &verr))
	assert.True(t, errors.As(h.ctl.Compose(), &verr), "empty selection")

	require.NoError(t, h.ctl.Select([]string{"E"}, nil))
	assert.True(t, errors.As(h.ctl.Compose(), &verr), "only an empty list")

	require.NoError(t, h.ctl.Select([]string{"E"}, []string{"A"}))
	require.NoError(t, h.ctl.Compose())

	assert.True(t, errors.As(h.ctl.SetMessage("   "), &verr))
	assert.Equal(t, StateComposing, h.ctl.Progress().State)

	require.NoError(t, h.ctl.SetMessage("Hi"))
	require.NoError(t, h.ctl.Back())
	assert.Equal(t, StateComposing, h.ctl.Progress().State)
	require.NoError(t, h.ctl.Back())
	assert.Equal(t, StateSelecting, h.ctl.Progress().State)
	assert.ErrorIs(t, h.ctl.Back(), ErrInvalidTransition)
}

func TestConfirm_DedupsAcrossListsAndContacts(t *testing.T) {
	h := newHarness(t)
	h.confirm(t, []string{"L1", "L2"}, []string{"B", "A"})

	p := h.ctl.Progress()
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, StateAwaitingExternalReturn, p.State)
	assert.Equal(t, []string{"972501111111"}, h.opener.phones())
}

func TestSequencing(t *testing.T) {
	h := newHarness(t)
	h.confirm(t, []string{"L1"}, []string{"C"})

	p := h.ctl.Progress()
	require.Equal(t, StateAwaitingExternalReturn, p.State)
	assert.Equal(t, 0, p.Index)

	h.resume()
	p = h.ctl.Progress()
	assert.Equal(t, 1, p.Index, "one resume advances exactly one recipient")
	assert.Equal(t, "B", p.Current.ContactID)
	assert.Equal(t, StateAwaitingExternalReturn, p.State)

	h.resume()
	assert.Equal(t, 2, h.ctl.Progress().Index)

	h.resume()
	p = h.ctl.Progress()
	assert.Equal(t, StateCompleted, p.State)
	require.NotNil(t, p.Summary)
	assert.Equal(t, 3, p.Summary.Processed)

	h.resume()
	h.ctl.Resume(context.Background())
	assert.Equal(t, 1, h.events.count(StateCompleted), "completion is reported once")
	assert.Equal(t, []string{"972501111111", "972502222222", "972503333333"}, h.opener.phones())
}

func TestNoAutoAdvanceWithoutResume(t *testing.T) {
	h := newHarness(t)
	h.confirm(t, []string{"L1"}, nil)

	h.monitor.Set(lifecycle.StateBackground)
	assert.Equal(t, StateAwaitingExternalReturn, h.ctl.Progress().State)
	assert.Equal(t, 0, h.ctl.Progress().Index)
	assert.Len(t, h.opener.phones(), 1)
}

func TestCancelWhileAwaiting(t *testing.T) {
	h := newHarness(t)
	h.confirm(t, []string{"L1"}, []string{"C"})

	require.NoError(t, h.ctl.Cancel())
	p := h.ctl.Progress()
	assert.Equal(t, StateCancelled, p.State)
	assert.Equal(t, 1, p.Summary.Processed)

	h.resume()
	assert.Len(t, h.opener.phones(), 1, "no hand-off after cancel")
	assert.Equal(t, StateCancelled, h.ctl.Progress().State)
	assert.ErrorIs(t, h.ctl.Cancel(), ErrInvalidTransition)

	require.NoError(t, h.ctl.Begin())
	assert.Equal(t, StateSelecting, h.ctl.Progress().State)
}

func TestCancelDuringOpenDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.opener.onOpen = func() {
		require.NoError(t, h.ctl.Cancel())
	}
	h.confirm(t, []string{"L1"}, nil)

	assert.Equal(t, StateCancelled, h.ctl.Progress().State)
	h.opener.onOpen = nil
	h.resume()
	assert.Len(t, h.opener.phones(), 1)
}

func TestRecipientFailure_Skip(t *testing.T) {
	h := newHarness(t)
	h.opener.fail["972502222222"] = errors.New("no handler for whatsapp://")
	h.confirm(t, []string{"L1"}, []string{"C"})

	h.resume()
	p := h.ctl.Progress()
	assert.Equal(t, StateDispatching, p.State)
	require.NotNil(t, p.Failure)
	assert.Equal(t, "B", p.Failure.Recipient.ContactID)

	h.resume()
	assert.Equal(t, 1, h.ctl.Progress().Index, "resume does not bypass a pending failure")

	require.NoError(t, h.ctl.Resolve(context.Background(), ChoiceSkip))
	p = h.ctl.Progress()
	assert.Equal(t, StateAwaitingExternalReturn, p.State)
	assert.Equal(t, "C", p.Current.ContactID)

	h.resume()
	p = h.ctl.Progress()
	assert.Equal(t, StateCompleted, p.State)
	assert.Equal(t, Summary{Processed: 3, Sent: 2, Skipped: 1, Total: 3}, *p.Summary)
}

func TestRecipientFailure_SkipLastCompletes(t *testing.T) {
	h := newHarness(t)
	h.opener.fail["972501111111"] = errors.New("boom")
	h.confirm(t, nil, []string{"A"})

	require.NoError(t, h.ctl.Resolve(context.Background(), ChoiceSkip))
	assert.Equal(t, StateCompleted, h.ctl.Progress().State)
}

func TestRecipientFailure_Stop(t *testing.T) {
	h := newHarness(t)
	h.opener.fail["972501111111"] = errors.New("boom")
	h.confirm(t, []string{"L1"}, nil)

	assert.Error(t, h.ctl.Resolve(context.Background(), Choice("retry")))
	require.NotNil(t, h.ctl.Progress().Failure)

	require.NoError(t, h.ctl.Resolve(context.Background(), ChoiceStop))
	assert.Equal(t, StateFailed, h.ctl.Progress().State)
	assert.ErrorIs(t, h.ctl.Resolve(context.Background(), ChoiceSkip), ErrInvalidTransition)

	h.resume()
	assert.Empty(t, h.opener.phones())

	require.NoError(t, h.ctl.Begin())
	assert.Empty(t, h.ctl.Progress().SelectedLists)
}

func TestShortPhoneIsRecoverable(t *testing.T) {
	h := newHarness(t)
	h.dir.contacts["S"] = contact("S", "12")
	h.confirm(t, nil, []string{"S", "A"})

	p := h.ctl.Progress()
	require.NotNil(t, p.Failure)
	var verr *models.ValidationError
	assert.True(t, errors.As(p.Failure, &verr))

	require.NoError(t, h.ctl.Resolve(context.Background(), ChoiceSkip))
	assert.Equal(t, []string{"972501111111"}, h.opener.phones())
}

func TestResetAndBeginGuards(t *testing.T) {
	h := newHarness(t)
	h.confirm(t, nil, []string{"A"})

	assert.ErrorIs(t, h.ctl.Begin(), ErrInvalidTransition)
	assert.ErrorIs(t, h.ctl.Reset(), ErrInvalidTransition)

	require.NoError(t, h.ctl.Cancel())
	require.NoError(t, h.ctl.Reset())
	assert.Equal(t, StateIdle, h.ctl.Progress().State)
}

func TestStopUnregistersLifecycleHandler(t *testing.T) {
	h := newHarness(t)
	h.confirm(t, nil, []string{"A", "B"})

	h.ctl.Stop()
	h.ctl.Stop()
	h.resume()
	assert.Equal(t, 0, h.ctl.Progress().Index)
}

func TestCancelBetweenProgressAndOpen(t *testing.T) {
	h := newHarness(t)
	h.events.onEvent = func(p Progress) {
		if p.State == StateDispatching && p.Index == 1 {
			require.NoError(t, h.ctl.Cancel())
		}
	}
	h.confirm(t, []string{"L1"}, []string{"C"})

	h.resume()
	p := h.ctl.Progress()
	assert.Equal(t, StateCancelled, p.State)
	assert.Equal(t, Summary{Processed: 1, Sent: 1, Total: 3}, *p.Summary)
	assert.Equal(t, []string{"972501111111"}, h.opener.phones(), "no hand-off after cancel")
}
