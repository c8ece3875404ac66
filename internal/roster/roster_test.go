package roster_test

import (
	"context"
	"testing"
	"time"

	"quickping/internal/identity"
	"quickping/internal/models"
	"quickping/internal/roster"
	"quickping/internal/store"
	"quickping/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const wait = 2 * time.Second
const tick = 5 * time.Millisecond

func TestContactStore_PersonalAndAll(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	session := identity.NewSession("u1")

	contacts := roster.NewContactStore(s, session, nil)
	contacts.Start()
	defer contacts.Stop()

	mine, err := s.CreateContact(ctx, "u1", store.ContactInput{FirstName: "Dana", LastName: "Levi", PhoneNumber: "0501111111"})
	require.NoError(t, err)
	_, err = s.CreateContact(ctx, "u2", store.ContactInput{FirstName: "Omer", PhoneNumber: "0502222222"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(contacts.All()) == 2 }, wait, tick)

	personal := contacts.Personal()
	require.Len(t, personal, 1)
	assert.Equal(t, mine.ID, personal[0].ID)

	got, ok := contacts.Contact(mine.ID)
	require.True(t, ok)
	assert.Equal(t, "Dana", got.FirstName)

	assert.Len(t, contacts.Search("levi", false), 1)
	assert.Len(t, contacts.Search("0502", false), 1)
	assert.Len(t, contacts.Search("0502", true), 0)
	assert.Len(t, contacts.Search("", true), 1)
}

func TestContactStore_RebindsOnIdentityChange(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	session := identity.NewSession("u1")

	_, err := s.CreateContact(ctx, "u1", store.ContactInput{FirstName: "A", PhoneNumber: "0501111111"})
	require.NoError(t, err)
	_, err = s.CreateContact(ctx, "u2", store.ContactInput{FirstName: "B", PhoneNumber: "0502222222"})
	require.NoError(t, err)

	contacts := roster.NewContactStore(s, session, nil)
	contacts.Start()
	defer contacts.Stop()

	require.Eventually(t, func() bool { return len(contacts.Personal()) == 1 }, wait, tick)
	assert.Equal(t, "A", contacts.Personal()[0].FirstName)

	session.SignIn("u2")
	require.Eventually(t, func() bool {
		p := contacts.Personal()
		return len(p) == 1 && p[0].FirstName == "B"
	}, wait, tick)

	session.SignOut()
	assert.Empty(t, contacts.All())
}

func TestListStore_MirrorsOwnerLists(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	session := identity.NewSession("u1")

	lists := roster.NewListStore(s, session, nil)
	lists.Start()
	defer lists.Stop()

	changes := make(chan string, 16)
	sub := lists.OnChange(func(owner string) {
		select {
		case changes <- owner:
		default:
		}
	})
	defer sub.Unsubscribe()

	_, err := s.CreateList(ctx, "u1", store.ListInput{Name: "Work"})
	require.NoError(t, err)
	_, err = s.CreateList(ctx, "u2", store.ListInput{Name: "Other"})
	require.NoError(t, err)
	sys := &models.ContactList{OwnerID: "u1", Name: storetest.SystemListName, IsSystemGenerated: true}
	require.NoError(t, s.SaveList(ctx, "u1", sys))
	_, err = s.CreateList(ctx, "u1", store.ListInput{Name: "Family"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(lists.Lists()) == 3 }, wait, tick)

	var names []string
	for _, l := range lists.Lists() {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"Family", "Work", storetest.SystemListName}, names)

	got, ok := lists.System()
	require.True(t, ok)
	assert.Equal(t, sys.ID, got.ID)

	select {
	case owner := <-changes:
		assert.Equal(t, "u1", owner)
	case <-time.After(wait):
		t.Fatal("no change event")
	}
}

func TestSortLists(t *testing.T) {
	lists := []models.ContactList{
		{Name: "b"},
		{Name: "A", IsSystemGenerated: true},
		{Name: "B"},
		{Name: "a"},
	}
	roster.SortLists(lists)

	var names []string
	for _, l := range lists {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"B", "a", "b", "A"}, names)
}
