package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_PublishInOrder(t *testing.T) {
	var f Feed[int]
	var got []string

	f.Subscribe(func(v int) { got = append(got, "a") })
	f.Subscribe(func(v int) { got = append(got, "b") })

	f.Publish(1)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestFeed_UnsubscribeIsIdempotent(t *testing.T) {
	var f Feed[string]
	calls := 0

	sub := f.Subscribe(func(string) { calls++ })
	other := f.Subscribe(func(string) {})
	require.Equal(t, 2, f.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 1, f.Len())

	f.Publish("x")
	assert.Equal(t, 0, calls)

	other.Unsubscribe()
	assert.Equal(t, 0, f.Len())
}

func TestFeed_HandlerMayUnsubscribeItself(t *testing.T) {
	var f Feed[int]
	calls := 0

	var sub *Subscription
	sub = f.Subscribe(func(int) {
		calls++
		sub.Unsubscribe()
	})

	f.Publish(1)
	f.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestSubscription_NilSafe(t *testing.T) {
	var s *Subscription
	assert.NotPanics(t, s.Unsubscribe)
	assert.NotPanics(t, NewSubscription(nil).Unsubscribe)
}
