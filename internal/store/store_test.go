package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quickping/internal/models"
	"quickping/internal/store"
	"quickping/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func mustContact(t *testing.T, s *store.Store, owner, first, phone string) models.Contact {
	t.Helper()
	c, err := s.CreateContact(context.Background(), owner, store.ContactInput{FirstName: first, PhoneNumber: phone})
	require.NoError(t, err)
	return c
}

func TestCreateContact_CanonicalPhone(t *testing.T) {
	s := storetest.New(t)

	c := mustContact(t, s, "u1", "Dana", "050-123-4567")
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "u1", c.OwnerID)
	assert.Equal(t, "0501234567", c.PhoneNumber)

	got, err := s.Contact(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dana", got.FirstName)
}

func TestCreateContact_Validation(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	_, err := s.CreateContact(ctx, "u1", store.ContactInput{FirstName: "A", PhoneNumber: "123"})
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "phone_number", verr.Field)

	_, err = s.CreateContact(ctx, "u1", store.ContactInput{PhoneNumber: "0501234567"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)

	_, err = s.CreateContact(ctx, "", store.ContactInput{FirstName: "A", PhoneNumber: "0501234567"})
	assert.ErrorIs(t, err, store.ErrNotOwner)
}

func TestUpdateDeleteContact_OwnerOnly(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	c := mustContact(t, s, "u1", "Dana", "0501234567")

	_, err := s.UpdateContact(ctx, "u2", c.ID, store.ContactInput{FirstName: "X", PhoneNumber: "0501234567"})
	assert.ErrorIs(t, err, store.ErrNotOwner)
	assert.ErrorIs(t, s.DeleteContact(ctx, "u2", c.ID), store.ErrNotOwner)

	updated, err := s.UpdateContact(ctx, "u1", c.ID, store.ContactInput{FirstName: "Dana", LastName: "Levi", PhoneNumber: "+972 50 111 2222"})
	require.NoError(t, err)
	assert.Equal(t, "972501112222", updated.PhoneNumber)

	require.NoError(t, s.DeleteContact(ctx, "u1", c.ID))
	_, err = s.Contact(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestContacts_Filter(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	mustContact(t, s, "u1", "A", "0501111111")
	mustContact(t, s, "u2", "B", "0502222222")
	mustContact(t, s, "u1", "C", "0503333333")

	mine, err := s.Contacts(ctx, store.Filter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "A", mine[0].FirstName)
	assert.Equal(t, "C", mine[1].FirstName)

	all, err := s.Contacts(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	owners, err := s.Owners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, owners)
}

func TestCreateList_SnapshotsAndValidation(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	a := mustContact(t, s, "u1", "A", "0501111111")
	b := mustContact(t, s, "u2", "B", "0502222222")

	l, err := s.CreateList(ctx, "u1", store.ListInput{Name: "Family", ContactIDs: []string{a.ID, b.ID, a.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, l.MemberIDs())
	assert.False(t, l.IsSystemGenerated)

	got, err := s.List(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, got.Members, 2)
	assert.Equal(t, "0501111111", got.Members[0].PhoneNumber)

	_, err = s.CreateList(ctx, "u1", store.ListInput{Name: storetest.SystemListName})
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = s.CreateList(ctx, "u1", store.ListInput{Name: "Ghosts", ContactIDs: []string{"missing"}})
	assert.True(t, errors.As(err, &verr))
}

func TestEditingContactDoesNotTouchListCopy(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	a := mustContact(t, s, "u1", "A", "0501111111")
	l, err := s.CreateList(ctx, "u1", store.ListInput{Name: "Work", ContactIDs: []string{a.ID}})
	require.NoError(t, err)

	_, err = s.UpdateContact(ctx, "u1", a.ID, store.ContactInput{FirstName: "Renamed", PhoneNumber: "0501111111"})
	require.NoError(t, err)

	got, err := s.List(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Members[0].FirstName)

	got, err = s.UpdateList(ctx, "u1", l.ID, store.ListInput{Name: "Work", ContactIDs: []string{a.ID}})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Members[0].FirstName)
}

func TestSystemList_GuardedFromUserWrites(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	sys := &models.ContactList{OwnerID: "u1", Name: storetest.SystemListName, IsSystemGenerated: true}
	require.NoError(t, s.SaveList(ctx, "u1", sys))
	require.NotEmpty(t, sys.ID)

	_, err := s.UpdateList(ctx, "u1", sys.ID, store.ListInput{Name: "Mine"})
	assert.ErrorIs(t, err, store.ErrSystemList)
	assert.ErrorIs(t, s.DeleteList(ctx, "u1", sys.ID), store.ErrSystemList)

	assert.ErrorIs(t, s.SaveList(ctx, "u2", sys), store.ErrNotOwner)
	assert.ErrorIs(t, s.PurgeList(ctx, "u2", sys.ID), store.ErrNotOwner)
	require.NoError(t, s.PurgeList(ctx, "u1", sys.ID))
}

func TestSavedMessages(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	_, err := s.CreateMessage(ctx, "u1", store.MessageInput{Title: "empty", Body: "  "})
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))

	m, err := s.CreateMessage(ctx, "u1", store.MessageInput{Title: "Hi", Body: "Hello there"})
	require.NoError(t, err)

	_, err = s.UpdateMessage(ctx, "u2", m.ID, store.MessageInput{Body: "x"})
	assert.ErrorIs(t, err, store.ErrNotOwner)

	m, err = s.UpdateMessage(ctx, "u1", m.ID, store.MessageInput{Title: "Hi", Body: "Hello again"})
	require.NoError(t, err)
	assert.Equal(t, "Hello again", m.Body)

	msgs, err := s.Messages(ctx, store.Filter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	require.NoError(t, s.DeleteMessage(ctx, "u1", m.ID))
	_, err = s.Message(ctx, m.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type recorder[T any] struct {
	mu    sync.Mutex
	snaps [][]T
}

func (r *recorder[T]) add(s store.Snapshot[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s.Items)
}

func (r *recorder[T]) last() ([]T, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil, 0
	}
	return r.snaps[len(r.snaps)-1], len(r.snaps)
}

func TestSubscribeContacts_DeliversSnapshots(t *testing.T) {
	s := storetest.New(t)
	rec := &recorder[models.Contact]{}

	sub, err := s.SubscribeContacts(store.Filter{OwnerID: "u1"}, rec.add)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { _, n := rec.last(); return n >= 1 }, time.Second, 5*time.Millisecond)

	mustContact(t, s, "u1", "A", "0501111111")
	mustContact(t, s, "u2", "B", "0502222222")

	require.Eventually(t, func() bool {
		items, _ := rec.last()
		return len(items) == 1
	}, time.Second, 5*time.Millisecond)

	items, _ := rec.last()
	assert.Equal(t, "A", items[0].FirstName)
}

func TestSubscribeLists_UnsubscribeStopsDelivery(t *testing.T) {
	s := storetest.New(t)
	rec := &recorder[models.ContactList]{}

	sub, err := s.SubscribeLists(store.Filter{OwnerID: "u1"}, rec.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, n := rec.last(); return n == 1 }, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, err = s.CreateList(context.Background(), "u1", store.ListInput{Name: "Later"})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, n := rec.last()
	assert.Equal(t, 1, n)
}

func TestSubscribe_AfterClose(t *testing.T) {
	s := storetest.New(t)
	s.Close()

	_, err := s.SubscribeContacts(store.Filter{}, func(store.Snapshot[models.Contact]) {})
	assert.ErrorIs(t, err, store.ErrClosed)
}
